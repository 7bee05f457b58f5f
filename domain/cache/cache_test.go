package cache_test

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/clitool-registry/domain/cache"
)

func TestValidateKey(t *testing.T) {
	t.Parallel()

	if err := cache.ValidateKey(""); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("ValidateKey(\"\") = %v, want ErrInvalidKey", err)
	}
	if err := cache.ValidateKey("releases:cli:cli"); err != nil {
		t.Errorf("ValidateKey() unexpected error = %v", err)
	}
}
