package userauth

import "context"

// IssueCode exposes the verification-code issuer to external tests.
func (s *Service) IssueCode(ctx context.Context, email string) (string, error) {
	return s.codes.Issue(ctx, email)
}
