package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arabesque/studio-api/internal/models"
)

func TestAccountVisibleTo(t *testing.T) {
	account := &models.AccountDetail{
		StudentPersonID:  "per-student",
		GuardianPersonID: "per-guardian",
		BillingPersonID:  "per-billing",
	}

	personID := func(id string) *string { return &id }

	t.Run("staff see everything", func(t *testing.T) {
		claims := &models.JWTClaims{Role: models.RoleStaff}
		assert.True(t, accountVisibleTo(claims, account))
	})

	t.Run("guardian sees own account", func(t *testing.T) {
		claims := &models.JWTClaims{Role: models.RoleParent, PersonID: personID("per-guardian")}
		assert.True(t, accountVisibleTo(claims, account))
	})

	t.Run("billing contact sees own account", func(t *testing.T) {
		claims := &models.JWTClaims{Role: models.RoleParent, PersonID: personID("per-billing")}
		assert.True(t, accountVisibleTo(claims, account))
	})

	t.Run("unrelated parent rejected", func(t *testing.T) {
		claims := &models.JWTClaims{Role: models.RoleParent, PersonID: personID("per-other")}
		assert.False(t, accountVisibleTo(claims, account))
	})

	t.Run("parent without linked person rejected", func(t *testing.T) {
		claims := &models.JWTClaims{Role: models.RoleParent}
		assert.False(t, accountVisibleTo(claims, account))
	})
}
