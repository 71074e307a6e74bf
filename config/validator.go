package config

// Validator is implemented by configuration sections
type Validator interface {
	Validate() error
}

// Defaulter fills zero values after decoding
type Defaulter interface {
	ApplyDefaults()
}

// ValidateAll stops at the first invalid section
func ValidateAll(validators ...Validator) error {
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
