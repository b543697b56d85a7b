package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"zap-backend/internal/models"
	"zap-backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubDepositRepo serves a single canned record by id.
type stubDepositRepo struct {
	record *models.DepositRecord
}

func (s *stubDepositRepo) Create(context.Context, *models.DepositRecord) error { return nil }

func (s *stubDepositRepo) GetByID(_ context.Context, id string) (*models.DepositRecord, error) {
	if s.record != nil && s.record.ID == id {
		return s.record, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDepositRepo) FindBySession(context.Context, string) ([]*models.DepositRecord, error) {
	return nil, nil
}

func (s *stubDepositRepo) FindByVault(context.Context, string, int, int) ([]*models.DepositRecord, int64, error) {
	return nil, 0, nil
}

func depositRouter(repo repository.DepositRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewVaultHandler(nil, repo)
	r := gin.New()
	r.GET("/api/deposits/:id", handler.GetDepositHandler)
	return r
}

func TestGetDepositHandler(t *testing.T) {
	t.Run("ReturnsRecord", func(t *testing.T) {
		repo := &stubDepositRepo{record: &models.DepositRecord{
			ID:      "dep-1",
			VaultID: "venus-bnb",
			Stage:   models.StageExecuted,
			Mode:    "zap",
		}}
		r := depositRouter(repo)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/deposits/dep-1", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Deposit models.DepositRecord `json:"deposit"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "venus-bnb", body.Deposit.VaultID)
	})

	t.Run("UnknownIDIs404", func(t *testing.T) {
		r := depositRouter(repository.NewDepositRepository(nil))

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", "/api/deposits/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
