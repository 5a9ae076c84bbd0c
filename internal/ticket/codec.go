// AngelaMos | 2026
// codec.go

package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/carterperez-dev/gatepass/internal/config"
	"github.com/carterperez-dev/gatepass/internal/core"
)

const (
	Separator  = ":"
	derivedLen = 32
	hkdfInfo   = "gatepass/ticket-class/"

	// MacLen is the length of a hex encoded HMAC-SHA256.
	MacLen = sha256.Size * 2
)

type Class string

const ClassFree Class = "free"

type Claims struct {
	PrincipalID string `json:"principal_id"`
	Class       Class  `json:"class"`
}

type classDigest struct {
	class  Class
	digest string
}

// Codec mints and verifies credential tokens of the form
// "{principalID}:{hex(mac)}". The class table is fixed at construction.
type Codec struct {
	digests []classDigest
	byClass map[Class]string
}

// New builds a codec from raw per-class secrets.
func New(secrets map[Class][]byte) (*Codec, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("ticket codec: no classes: %w", core.ErrInvalidInput)
	}

	c := &Codec{
		digests: make([]classDigest, 0, len(secrets)),
		byClass: make(map[Class]string, len(secrets)),
	}

	owner := make(map[string]Class, len(secrets))
	for class, secret := range secrets {
		if class == "" || len(secret) == 0 {
			return nil, fmt.Errorf(
				"ticket codec: class %q: empty name or secret: %w",
				class,
				core.ErrInvalidInput,
			)
		}

		digest := digestOf(secret)
		if other, dup := owner[digest]; dup {
			return nil, fmt.Errorf(
				"ticket codec: classes %q and %q share a secret: %w",
				other,
				class,
				core.ErrInvalidInput,
			)
		}
		owner[digest] = class

		c.digests = append(c.digests, classDigest{class: class, digest: digest})
		c.byClass[class] = digest
	}

	return c, nil
}

// FromConfig resolves every configured class to its secret, deriving
// missing ones from the master secret.
func FromConfig(cfg config.TicketsConfig) (*Codec, error) {
	secrets := make(map[Class][]byte, len(cfg.Classes))

	for _, cc := range cfg.Classes {
		if cc.Secret != "" {
			secrets[Class(cc.Name)] = []byte(cc.Secret)
			continue
		}

		derived, err := DeriveSecret(cfg.MasterSecret, Class(cc.Name))
		if err != nil {
			return nil, err
		}
		secrets[Class(cc.Name)] = derived
	}

	return New(secrets)
}

func DeriveSecret(master string, class Class) ([]byte, error) {
	if master == "" {
		return nil, fmt.Errorf(
			"derive secret for %q: empty master secret: %w",
			class,
			core.ErrInvalidInput,
		)
	}

	out := make([]byte, derivedLen)
	r := hkdf.New(sha256.New, []byte(master), nil, []byte(hkdfInfo+string(class)))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive secret for %q: %w", class, err)
	}

	return out, nil
}

// digestOf keys HMAC-SHA256 with the class secret over an empty message.
// The result does not depend on the principal, so any token of a class
// verifies for any principal id placed in front of it. Binding the
// principal would change the credential format already in circulation.
func digestOf(secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Codec) Mint(principalID string, class Class) (string, error) {
	if principalID == "" || strings.Contains(principalID, Separator) {
		return "", fmt.Errorf("mint: principal id %q: %w", principalID, core.ErrMalformed)
	}

	digest, ok := c.byClass[class]
	if !ok {
		return "", fmt.Errorf("mint: class %q: %w", class, core.ErrUnknownClass)
	}

	return principalID + Separator + digest, nil
}

func (c *Codec) Verify(token string) (Claims, error) {
	principalID, mac, ok := Split(token)
	if !ok {
		return Claims{}, fmt.Errorf("verify: %w", core.ErrMalformed)
	}

	for _, d := range c.digests {
		if core.ConstantTimeEqual(mac, d.digest) {
			return Claims{PrincipalID: principalID, Class: d.class}, nil
		}
	}

	return Claims{}, fmt.Errorf("verify: %w", core.ErrUnknownClass)
}

// Split checks the "{principalID}:{mac}" shape on the first separator.
// The mac must be MacLen lowercase hex characters.
func Split(raw string) (principalID, mac string, ok bool) {
	principalID, mac, found := strings.Cut(raw, Separator)
	if !found || principalID == "" || !isMac(mac) {
		return "", "", false
	}
	return principalID, mac, true
}

func isMac(s string) bool {
	if len(s) != MacLen || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func (c *Codec) Has(class Class) bool {
	_, ok := c.byClass[class]
	return ok
}

func (c *Codec) Classes() []Class {
	out := make([]Class, 0, len(c.digests))
	for _, d := range c.digests {
		out = append(out, d.class)
	}
	slices.Sort(out)
	return out
}
