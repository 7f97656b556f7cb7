package localstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskchat/taskchat/internal/security"
	"github.com/taskchat/taskchat/internal/storage"
)

// Credential storage keys.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// CredentialKeys lists every key Clear removes.
var CredentialKeys = []string{KeyToken, KeyRefreshToken, KeyUser}

// Profile is the signed-in user as returned by the login endpoint.
type Profile struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// DisplayName is the first name, falling back to the username.
func (p *Profile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.FirstName != "" {
		return p.FirstName
	}
	return p.Username
}

// Vault stores credentials. Tokens are sealed when an Encryptor is set.
type Vault struct {
	store storage.Store
	enc   *security.Encryptor
}

// NewVault wraps store. enc may be nil, in which case tokens are stored in
// plaintext.
func NewVault(store storage.Store, enc *security.Encryptor) *Vault {
	return &Vault{store: store, enc: enc}
}

// Token returns the bearer token, or "" when signed out.
func (v *Vault) Token(ctx context.Context) (string, error) {
	return v.getSecret(ctx, KeyToken)
}

// RefreshToken returns the refresh token, or "".
func (v *Vault) RefreshToken(ctx context.Context) (string, error) {
	return v.getSecret(ctx, KeyRefreshToken)
}

// SetTokens stores the access and refresh tokens. An empty refresh token
// leaves the stored one untouched.
func (v *Vault) SetTokens(ctx context.Context, token, refresh string) error {
	if err := v.putSecret(ctx, KeyToken, token); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return v.putSecret(ctx, KeyRefreshToken, refresh)
}

// Profile returns the stored user profile, or nil when none is stored or it
// cannot be decoded.
func (v *Vault) Profile(ctx context.Context) (*Profile, error) {
	e, err := v.store.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if e == nil {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal(e.Value, &p); err != nil {
		return nil, nil
	}
	return &p, nil
}

// SetProfile stores the user profile as JSON.
func (v *Vault) SetProfile(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := v.store.Put(ctx, KeyUser, data); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

// Clear removes the token, the refresh token and the user profile.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.store.Delete(ctx, CredentialKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (v *Vault) getSecret(ctx context.Context, key string) (string, error) {
	e, err := v.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	if e == nil {
		return "", nil
	}
	if !security.IsSealed(e.Value) {
		return string(e.Value), nil
	}
	if v.enc == nil {
		return "", fmt.Errorf("load %s: %w", key, security.ErrSealed)
	}
	pt, err := v.enc.Open(key, e.Value)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	return string(pt), nil
}

func (v *Vault) putSecret(ctx context.Context, key, value string) error {
	data := []byte(value)
	if v.enc != nil {
		sealed, err := v.enc.Seal(key, data)
		if err != nil {
			return fmt.Errorf("seal %s: %w", key, err)
		}
		data = sealed
	}
	if err := v.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
