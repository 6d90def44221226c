package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration against its struct tags and a few
// cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// A realm on both lists would silently depend on check order.
	for _, blocked := range cfg.Policy.RealmBlocklist {
		for _, allowed := range cfg.Policy.RealmAllowlist {
			if strings.EqualFold(strings.TrimSuffix(blocked, "."), strings.TrimSuffix(allowed, ".")) {
				return fmt.Errorf("realm %q appears on both the allowlist and the blocklist", blocked)
			}
		}
	}

	return nil
}
