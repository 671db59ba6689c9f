package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("successful registration creates user and wallet", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "merchant@example.com",
			Password:    "password123",
			FirstName:   "Ada",
			LastName:    "Obi",
			StoreName:   "Ada's Fabrics",
			PhoneNumber: "+2348012345678",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), req.FirstName, req.LastName,
				sqlmock.AnyArg(), req.StoreName, req.PhoneNumber).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs(sqlmock.AnyArg(), "NGN").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.Contains(t, response.User.StoreID, "st_")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := RegisterRequest{
			Email:       "taken@example.com",
			Password:    "password123",
			FirstName:   "Ada",
			LastName:    "Obi",
			StoreName:   "Ada's Fabrics",
			PhoneNumber: "+2348012345678",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	redisClient, _ := redismock.NewClientMock()
	service := NewAuthService(db, redisClient)

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, first_name, last_name, password, store_id, store_name FROM users").
			WithArgs("merchant@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password", "store_id", "store_name"}).
				AddRow(1, "merchant@example.com", "Ada", "Obi", hashedPassword, "st_abc123", "Ada's Fabrics"))

		body, _ := json.Marshal(LoginRequest{Email: "merchant@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, "st_abc123", response.User.StoreID)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, first_name, last_name, password, store_id, store_name FROM users").
			WithArgs("merchant@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "password", "store_id", "store_name"}).
				AddRow(1, "merchant@example.com", "Ada", "Obi", hashedPassword, "st_abc123", "Ada's Fabrics"))

		body, _ := json.Marshal(LoginRequest{Email: "merchant@example.com", Password: "wrongpassword"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, first_name, last_name, password, store_id, store_name FROM users").
			WithArgs("nonexistent@example.com").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Email: "nonexistent@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
	assert.False(t, verifyPassword(password, "not-a-valid-hash"))
}

func TestGenerateJWT(t *testing.T) {
	setupAuthConfig()

	token, err := generateJWT(123, "st_abc123")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)

	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(123), claims["user_id"])
	assert.Equal(t, "st_abc123", claims["store_id"])
}
