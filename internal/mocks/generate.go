// Package mocks holds gomock-generated mocks for service interfaces.
//
// Regenerate after interface changes with:
//
//	go generate ./internal/mocks
package mocks

// Mock for the auth handler's AuthService interface:
// Login, Register, Logout.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=auth_service_mock.go agora/internal/auth/handler AuthService
