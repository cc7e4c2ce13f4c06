package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestMessageFallsBackToCode() {
	s.Equal("session expired", (&Error{Code: CodeUnauthorized, Message: "session expired"}).Error())
	s.Equal("unavailable", (&Error{Code: CodeUnavailable}).Error())
}

func (s *DomainErrorsSuite) TestCodeMatching() {
	s.Run("errors.Is matches by code through fmt wrapping", func() {
		err := fmt.Errorf("sign in: %w", New(CodeUnauthorized, "bad credentials"))
		s.True(errors.Is(err, &Error{Code: CodeUnauthorized}))
		s.False(errors.Is(err, &Error{Code: CodeForbidden}))
	})

	s.Run("plain errors never match", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not_found")))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the innermost domain code", func() {
		wrapped := Wrap(New(CodeUnavailable, "credential service down"), CodeInternal, "refresh failed")
		s.True(HasCode(wrapped, CodeUnavailable))
		s.Equal("refresh failed", wrapped.Error())
	})

	s.Run("applies the given code to foreign errors", func() {
		root := errors.New("dial tcp: refused")
		wrapped := Wrap(root, CodeUnavailable, "credential service unreachable")
		s.True(HasCode(wrapped, CodeUnavailable))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestHasCodeNil() {
	s.False(HasCode(nil, CodeInternal))
}
