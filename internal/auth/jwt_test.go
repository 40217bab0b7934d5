package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalith-99/campuslink/internal/models"
)

const testSecret = "test-secret"

func testUser() *models.User {
	return &models.User{
		ID:          uuid.New(),
		Email:       "priya@campus.test",
		DisplayName: "Priya N",
		Role:        "student",
		Department:  "CSE",
		Year:        3,
		Section:     "A",
	}
}

func TestTokenRoundTrip(t *testing.T) {
	user := testUser()

	token, err := GenerateToken(user, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)

	identity := claims.Identity()
	assert.Equal(t, user.ID, identity.ID)
	assert.Equal(t, "Priya N", identity.Name)
	assert.Equal(t, "student", identity.Role)
	assert.Equal(t, "CSE", identity.Department)
	assert.Equal(t, 3, identity.Year)
	assert.Equal(t, "A", identity.Section)
	assert.True(t, identity.HasClass())
}

func TestTokenWithoutClassAttributes(t *testing.T) {
	user := &models.User{ID: uuid.New(), DisplayName: "Dean", Role: "admin"}

	token, err := GenerateToken(user, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.False(t, claims.Identity().HasClass())
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(testUser(), testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	token, err := GenerateToken(testUser(), testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseToken("not-a-token", testSecret)
	assert.Error(t, err)
}
