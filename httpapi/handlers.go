package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/luminet/userauth"
)

type registerRequest struct {
	Email            string `json:"email"`
	Nickname         string `json:"nickname"`
	Password         string `json:"password"`
	VerificationCode string `json:"verificationCode"`
	AvatarURL        string `json:"avatarUrl"`
	AvatarBase64     string `json:"avatarBase64"`
	Country          string `json:"country"`
	Gender           uint8  `json:"gender"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
	NewPassword      string `json:"newPassword"`
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"service": "userauth", "status": "up"})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"publicKey": s.svc.PublicKey()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	out, err := s.svc.Register(r.Context(), userauth.RegisterInput{
		Email:             req.Email,
		Nickname:          req.Nickname,
		EncryptedPassword: req.Password,
		VerificationCode:  req.VerificationCode,
		AvatarURL:         req.AvatarURL,
		AvatarBase64:      req.AvatarBase64,
		Country:           req.Country,
		Gender:            req.Gender,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	out, err := s.svc.Login(r.Context(), userauth.LoginInput{
		Username:          req.Username,
		EncryptedPassword: req.Password,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, out)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, out)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	err := s.svc.ResetPassword(r.Context(), userauth.ResetPasswordInput{
		Email:                req.Email,
		VerificationCode:     req.VerificationCode,
		EncryptedNewPassword: req.NewPassword,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !res.Valid {
		writeJSON(w, http.StatusOK, envelope{Code: 401, Message: "not authenticated"})
		return
	}

	if err := s.svc.Logout(r.Context(), res.AccountID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	if err := s.svc.SendVerificationCode(r.Context(), req.Email); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, s.log, userauth.NewValidationError("user id must be a positive integer"))
		return
	}

	out, err := s.svc.UserInfo(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, out)
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return userauth.NewValidationError("malformed request body")
	}
	return nil
}

// bearerToken accepts both "Bearer <token>" and a bare token in the
// Authorization header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return h
}
