package phone

import (
	"github.com/nyaruka/phonenumbers"
)

// Result mirrors what callers need when deciding how to store an inbound
// number: a validity flag plus the E.164 form to prefer when valid.
type Result struct {
	IsValid    bool   `json:"is_valid"`
	E164       string `json:"formatted_e164,omitempty"`
	National   string `json:"formatted_national,omitempty"`
	Region     string `json:"region,omitempty"`
	NumberType string `json:"number_type,omitempty"`
	Err        string `json:"error,omitempty"`
}

type Validator struct {
	defaultRegion string
}

func NewValidator(defaultRegion string) *Validator {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &Validator{defaultRegion: defaultRegion}
}

// Validate parses and validates a phone number. Pure function over its
// input; callers decide what to do with invalid numbers.
func (v *Validator) Validate(number, region string) Result {
	if region == "" {
		region = v.defaultRegion
	}

	parsed, err := phonenumbers.Parse(number, region)
	if err != nil {
		return Result{Err: err.Error()}
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return Result{Err: "invalid phone number"}
	}

	return Result{
		IsValid:    true,
		E164:       phonenumbers.Format(parsed, phonenumbers.E164),
		National:   phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		Region:     phonenumbers.GetRegionCodeForNumber(parsed),
		NumberType: numberTypeString(phonenumbers.GetNumberType(parsed)),
	}
}

func numberTypeString(t phonenumbers.PhoneNumberType) string {
	switch t {
	case phonenumbers.FIXED_LINE:
		return "fixed_line"
	case phonenumbers.MOBILE:
		return "mobile"
	case phonenumbers.FIXED_LINE_OR_MOBILE:
		return "fixed_line_or_mobile"
	case phonenumbers.TOLL_FREE:
		return "toll_free"
	case phonenumbers.PREMIUM_RATE:
		return "premium_rate"
	case phonenumbers.SHARED_COST:
		return "shared_cost"
	case phonenumbers.VOIP:
		return "voip"
	case phonenumbers.PERSONAL_NUMBER:
		return "personal_number"
	case phonenumbers.PAGER:
		return "pager"
	case phonenumbers.UAN:
		return "uan"
	case phonenumbers.VOICEMAIL:
		return "voicemail"
	}
	return "unknown"
}
