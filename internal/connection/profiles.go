package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/credential"
	"github.com/peternagy/tablemoins/internal/types"
)

func validateProfile(p types.ConnectionProfile) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is required")
	}
	if !slices.Contains(types.StorableBackends, p.Type) {
		return &core.UnsupportedBackendError{Type: string(p.Type)}
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	if p.Type != types.BackendSQLite && strings.TrimSpace(p.Host) == "" {
		return errors.New("host is required")
	}
	return nil
}

// sealSecrets encrypts the plaintext password and client key of p in place.
func (s *Service) sealSecrets(p *types.ConnectionProfile) error {
	var err error
	if p.Password, err = s.cipher.Encrypt(p.Password); err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}
	if p.SSL.Key, err = s.cipher.Encrypt(p.SSL.Key); err != nil {
		return fmt.Errorf("failed to encrypt client key: %w", err)
	}
	return nil
}

// redact strips secrets before a profile leaves the service.
func redact(p types.ConnectionProfile) types.ConnectionProfile {
	p.Password = ""
	p.SSL.Key = ""
	return p
}

// CreateProfile stores a new profile. Password and SSL.Key are plaintext on
// input and encrypted before saving. The new id is returned.
func (s *Service) CreateProfile(ctx context.Context, p types.ConnectionProfile) (string, error) {
	if p.Port == 0 {
		p.Port = p.Type.DefaultPort()
	}
	if err := validateProfile(p); err != nil {
		return "", err
	}

	p.ID = s.cipher.GenerateID()
	p.IsActive = true
	p.CreatedAt = time.Time{}
	p.LastConnectedAt = time.Time{}
	if err := s.sealSecrets(&p); err != nil {
		return "", err
	}

	if _, err := s.store.Save(ctx, p); err != nil {
		return "", err
	}
	log.Info().Str("id", p.ID).Str("type", string(p.Type)).Msg("Connection profile created")
	return p.ID, nil
}

// UpdateProfile replaces the editable fields of a profile. An empty password
// or client key keeps the stored secret.
func (s *Service) UpdateProfile(ctx context.Context, id string, p types.ConnectionProfile) error {
	existing, err := s.store.GetByID(ctx, id, true)
	if err != nil {
		return err
	}
	if p.Port == 0 {
		p.Port = p.Type.DefaultPort()
	}
	if err := validateProfile(p); err != nil {
		return err
	}

	keepPassword, keepKey := p.Password == "", p.SSL.Key == ""
	if err := s.sealSecrets(&p); err != nil {
		return err
	}
	if keepPassword {
		p.Password = existing.Password
	}
	if keepKey {
		p.SSL.Key = existing.SSL.Key
	}

	p.ID = id
	p.IsActive = existing.IsActive
	p.CreatedAt = existing.CreatedAt
	p.LastConnectedAt = existing.LastConnectedAt

	_, err = s.store.Save(ctx, p)
	return err
}

// TestProfile probes the backend described by p without touching any tab or
// stored state. Password is plaintext; when it is empty and p.ID names a
// stored profile, the stored password is used. Every failure yields false.
func (s *Service) TestProfile(ctx context.Context, p types.ConnectionProfile) bool {
	if p.Port == 0 {
		p.Port = p.Type.DefaultPort()
	}
	password, key := p.Password, p.SSL.Key
	if p.ID != "" && (password == "" || key == "") {
		if stored, err := s.store.GetByID(ctx, p.ID, true); err == nil {
			if desc, err := s.descriptor(stored); err == nil {
				if password == "" {
					password = desc.Password
				}
				if key == "" {
					key = desc.SSL.Key
				}
			}
		}
	}

	desc := p.Descriptor(password)
	desc.SSL.Key = key
	drv, err := s.factory(desc, s.cfg)
	if err != nil {
		return false
	}
	return drv.TestConnection(ctx)
}

// GetProfile returns one profile with secrets removed.
func (s *Service) GetProfile(ctx context.Context, id string) (types.ConnectionProfile, error) {
	p, err := s.store.GetByID(ctx, id, true)
	if err != nil {
		return p, err
	}
	return redact(p), nil
}

// RevealPassword returns the plaintext password of a stored profile.
func (s *Service) RevealPassword(ctx context.Context, id string) (string, error) {
	p, err := s.store.GetByID(ctx, id, true)
	if err != nil {
		return "", err
	}
	password, err := s.cipher.Decrypt(p.Password)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt password for profile %s: %w", id, err)
	}
	return password, nil
}

// ListProfiles returns stored profiles with secrets removed.
func (s *Service) ListProfiles(ctx context.Context, activeOnly bool) ([]types.ConnectionProfile, error) {
	profiles, err := s.store.GetAll(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		profiles[i] = redact(profiles[i])
	}
	return profiles, nil
}

// DeleteProfile closes every tab opened on the profile and deletes it. A
// soft delete keeps the row but hides it from active listings.
func (s *Service) DeleteProfile(ctx context.Context, id string, soft bool) error {
	closeErr := s.fanOut(s.tabsForProfile(id), func(tabID string) error {
		return s.CloseTab(ctx, tabID)
	})
	if err := s.store.Delete(ctx, id, soft); err != nil {
		return err
	}
	if closeErr != nil {
		log.Warn().Err(closeErr).Str("profile", id).Msg("Errors while closing tabs of deleted profile")
	}
	return nil
}

// DuplicateProfile copies a profile, secrets included, under a new id. An
// empty name yields "<name> (copy)".
func (s *Service) DuplicateProfile(ctx context.Context, id, name string) (string, error) {
	original, err := s.store.GetByID(ctx, id, true)
	if err != nil {
		return "", err
	}

	dup := original
	dup.ID = s.cipher.GenerateID()
	dup.Name = name
	if strings.TrimSpace(dup.Name) == "" {
		dup.Name = original.Name + " (copy)"
	}
	dup.IsActive = true
	dup.CreatedAt = time.Time{}
	dup.LastConnectedAt = time.Time{}

	if _, err := s.store.Save(ctx, dup); err != nil {
		return "", fmt.Errorf("failed to save duplicated profile: %w", err)
	}
	return dup.ID, nil
}

// ExportProfiles seals the given profiles, plaintext secrets included, into a
// share bundle. The returned key is needed to import it.
func (s *Service) ExportProfiles(ctx context.Context, ids []string) (bundle, key string, err error) {
	exported := make([]types.ConnectionProfile, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.GetByID(ctx, id, true)
		if err != nil {
			return "", "", err
		}
		desc, err := s.descriptor(p)
		if err != nil {
			return "", "", err
		}
		p.Password = desc.Password
		p.SSL.Key = desc.SSL.Key
		p.LastConnectedAt = time.Time{}
		exported = append(exported, p)
	}

	data, err := json.Marshal(exported)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode profiles: %w", err)
	}
	return credential.EncryptForSharing(data)
}

// ImportProfiles opens a share bundle and creates a new profile for each
// entry. The ids of the created profiles are returned.
func (s *Service) ImportProfiles(ctx context.Context, bundle, key string) ([]string, error) {
	data, err := credential.DecryptFromSharing(bundle, key)
	if err != nil {
		return nil, err
	}
	var profiles []types.ConnectionProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("invalid bundle contents: %w", err)
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		id, err := s.CreateProfile(ctx, p)
		if err != nil {
			return ids, fmt.Errorf("failed to import profile %q: %w", p.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
