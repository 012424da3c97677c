package enginesrv

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"time"

	"github.com/Abraxas-365/craftable/errx"
	"github.com/agentcord/agentflow/engine"
	"github.com/agentcord/agentflow/pkg/kernel"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyService emite y verifica las credenciales de intake. El secreto se
// entrega una sola vez al emitir; en la base solo queda el hash bcrypt.
type APIKeyService struct {
	keys engine.APIKeyRepository
	cost int
}

func NewAPIKeyService(keys engine.APIKeyRepository) *APIKeyService {
	return &APIKeyService{
		keys: keys,
		cost: bcrypt.DefaultCost,
	}
}

// Issue genera una credencial nueva para la marca y devuelve el secreto en
// claro junto con el registro guardado.
func (s *APIKeyService) Issue(ctx context.Context, brandID int64, name string) (string, *engine.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, errx.Wrap(err, "failed to generate api key secret", errx.TypeInternal)
	}
	secret := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", nil, errx.Wrap(err, "failed to hash api key secret", errx.TypeInternal)
	}

	key := engine.APIKey{
		ID:        kernel.NewAPIKeyID(),
		BrandID:   brandID,
		Name:      name,
		KeyHash:   string(hash),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.keys.Save(ctx, key); err != nil {
		return "", nil, err
	}

	log.Printf("🔑 [API_KEY] Issued api key %s for brand %d", key.ID, brandID)
	return secret, &key, nil
}

// Verify compara el secreto contra las credenciales activas de la marca. Una
// marca sin credenciales configuradas acepta cualquier request: el intake
// también recibe webhooks de servicios internos confiables.
func (s *APIKeyService) Verify(ctx context.Context, brandID int64, secret string) error {
	keys, err := s.keys.FindActiveByBrand(ctx, brandID)
	if err != nil {
		return err
	}

	if len(keys) == 0 {
		return nil
	}

	for _, key := range keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(secret)) == nil {
			if err := s.keys.TouchLastUsed(ctx, key.ID); err != nil {
				log.Printf("⚠️  [API_KEY] Failed to update last_used_at for key %s: %v", key.ID, err)
			}
			return nil
		}
	}

	return engine.ErrInvalidAPIKey().WithDetail("brand_id", brandID)
}

// Revoke desactiva una credencial
func (s *APIKeyService) Revoke(ctx context.Context, id kernel.APIKeyID) error {
	if err := s.keys.Deactivate(ctx, id); err != nil {
		return err
	}
	log.Printf("🚫 [API_KEY] Revoked api key %s", id)
	return nil
}
