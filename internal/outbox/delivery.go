// AngelaMos | 2026
// delivery.go

package outbox

// Delivery is an outbound message for the chat layer. The chat layer owns
// the wording; TextKey names the template and Params fills it.
type Delivery struct {
	ChatID   string            `json:"chat_id"`
	Kind     Kind              `json:"kind"`
	TextKey  string            `json:"text_key"`
	Params   map[string]string `json:"params,omitempty"`
	ImagePNG []byte            `json:"image_png,omitempty"`
}

type Kind string

const (
	KindText  Kind = "text"
	KindPhoto Kind = "photo"
)

const (
	KeyCredentialIssued  = "credential.issued"
	KeyAlreadyRegistered = "credential.already_registered"
	KeySubscribePrompt   = "membership.subscribe_prompt"
	KeyContactPrompt     = "contact.share_prompt"
	KeyContactSaved      = "contact.saved"
	KeyWelcomeBack       = "start.welcome_back"
	KeyAdminGranted      = "roles.admin_granted"
	KeyAdminRevoked      = "roles.admin_revoked"
	KeyPromoterGranted   = "roles.promoter_granted"
	KeyPromoterRevoked   = "roles.promoter_revoked"
)

func Text(chatID, key string, params map[string]string) Delivery {
	return Delivery{ChatID: chatID, Kind: KindText, TextKey: key, Params: params}
}

func Photo(chatID, key string, png []byte, params map[string]string) Delivery {
	return Delivery{
		ChatID:   chatID,
		Kind:     KindPhoto,
		TextKey:  key,
		Params:   params,
		ImagePNG: png,
	}
}
