package domain

// ============================================================
// Admin auth — dashboard access
// ============================================================
//
// O dashboard (stats, histórico, simulação de venda) é protegido por um
// único principal admin: senha vinda do ambiente, comparada via bcrypt,
// trocada por um JWT de curta duração.

// AdminLoginRequest is the body of POST /v1/auth/login.
type AdminLoginRequest struct {
	Password string `json:"password"`
}

// AdminLoginResponse carries the issued bearer token.
type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // always "Bearer"
	ExpiresIn   int64  `json:"expires_in"` // seconds
}
