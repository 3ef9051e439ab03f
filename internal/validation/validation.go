package validation

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const MinPasswordLength = 6

var phonePattern = regexp.MustCompile(`^(\+27|0)[6-8][0-9]{8}$`)

type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e FieldErrors) Empty() bool { return len(e) == 0 }

// NormalizePhone strips every whitespace rune.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, phone)
}

// ValidPhone accepts South African mobile numbers in local (0821234567) or
// international (+27821234567) form.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(NormalizePhone(phone))
}

type SignUp struct {
	FirstName       string
	Email           string
	Password        string
	ConfirmPassword string
}

func (s SignUp) Validate() FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(s.FirstName) == "" {
		errs.Add("first_name", "Please enter your first name")
	}

	email := strings.TrimSpace(s.Email)
	if email == "" {
		errs.Add("email", "Please enter your email")
	} else if !strings.Contains(email, "@") {
		errs.Add("email", "Invalid email address")
	}

	switch {
	case s.Password == "":
		errs.Add("password", "Please enter a password")
	case len(s.Password) < MinPasswordLength:
		errs.Add("password", "Password must be at least 6 characters")
	case s.Password != s.ConfirmPassword:
		errs.Add("confirm_password", "Passwords do not match")
	}

	return errs
}

type SignIn struct {
	Email    string
	Password string
}

func (s SignIn) Validate() FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(s.Email) == "" {
		errs.Add("email", "Please enter email and password")
	}
	if s.Password == "" {
		errs.Add("password", "Please enter email and password")
	}
	return errs
}

// NewRequest mirrors the new-request form: everything arrives as text.
type NewRequest struct {
	ServiceID string
	Phone     string
	Address   string
	City      string
	Quantity  string
}

func (r NewRequest) Validate() FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(r.ServiceID) == "" {
		errs.Add("service_id", "Please select a service type.")
	}

	if strings.TrimSpace(r.Phone) == "" {
		errs.Add("phone", "Phone number is required.")
	} else if !ValidPhone(r.Phone) {
		errs.Add("phone", "Please enter a valid South African phone number (e.g., 0821234567 or +27821234567)")
	}

	if strings.TrimSpace(r.Address) == "" {
		errs.Add("address", "Street address is required.")
	}
	if strings.TrimSpace(r.City) == "" {
		errs.Add("city", "City is required.")
	}

	if _, ok := ParseQuantity(r.Quantity); !ok {
		errs.Add("quantity", "Please enter a valid quantity (minimum 1).")
	}

	return errs
}

// ParseQuantity treats an empty field as 1.
func ParseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
