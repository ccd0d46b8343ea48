// Package userauth is an embeddable user identity engine: registration
// with one-time email codes, login, signed session tokens, token
// introspection and password reset.
//
// Passwords never travel in the clear. Clients fetch the RSA public key
// (Service.PublicKey), encrypt the password and send the base64
// ciphertext; the service decrypts, salts and bcrypt-hashes it.
//
// Tokens are signed per account with the secret held in the account's
// single server-side session record. Overwriting or deleting that
// record (login, logout, password reset) revokes every previously
// issued token at once.
//
// Wire up a Service with the builder:
//
//	svc, err := userauth.New().
//		WithStore(store).
//		WithRedis(client).
//		WithKeyPair(privPEM, pubPEM).
//		Build(ctx)
//
// The httpapi package serves the engine over HTTP; cmd/userauthd is the
// ready-made server binary.
package userauth
