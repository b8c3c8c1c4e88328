package checkout

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/claimdesk/claimdesk/internal/model"
)

// addressFields are the labels a tracked order's address block must carry,
// one "Label : value" pair per line.
var addressFields = []string{
	"Name",
	"Street Name",
	"Unit Number",
	"Postal Code",
	"Phone Number",
}

var whitespace = regexp.MustCompile(`\s+`)

// ParseAddressBlock parses the buyer's address message. Field labels are
// matched case-insensitively; postal code and phone number have internal
// whitespace stripped. All five fields are required.
func ParseAddressBlock(text string) (*model.Address, error) {
	values := map[string]string{}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		for _, field := range addressFields {
			if key == strings.ToLower(field) {
				values[field] = value
			}
		}
	}

	for _, field := range addressFields {
		if values[field] == "" {
			return nil, fmt.Errorf("address field %q missing", field)
		}
	}

	return &model.Address{
		Name:   values["Name"],
		Street: values["Street Name"],
		Unit:   values["Unit Number"],
		Postal: whitespace.ReplaceAllString(values["Postal Code"], ""),
		Phone:  whitespace.ReplaceAllString(values["Phone Number"], ""),
	}, nil
}

// AddressTemplate is the fill-in block shown to buyers.
func AddressTemplate() string {
	var b strings.Builder
	for _, field := range addressFields {
		fmt.Fprintf(&b, "%s :\n", field)
	}
	return b.String()
}
