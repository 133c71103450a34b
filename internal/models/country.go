package models

import "strings"

// Country is a sign-up country with its international dialing code.
type Country struct {
	Name string
	Code string
}

// Countries offered at sign-up.
var Countries = []Country{
	{"United States", "+1"},
	{"United Kingdom", "+44"},
	{"Canada", "+1"},
	{"Australia", "+61"},
	{"Germany", "+49"},
	{"France", "+33"},
	{"India", "+91"},
	{"China", "+86"},
	{"Japan", "+81"},
	{"Brazil", "+55"},
	{"Italy", "+39"},
	{"Spain", "+34"},
	{"Mexico", "+52"},
	{"South Korea", "+82"},
	{"Netherlands", "+31"},
	{"South Africa", "+27"},
	{"Turkey", "+90"},
	{"Malaysia", "+60"},
	{"Indonesia", "+62"},
	{"Singapore", "+65"},
}

// LookupCountry finds a country by name, ignoring case and surrounding space.
func LookupCountry(name string) (Country, bool) {
	name = strings.TrimSpace(name)
	for _, c := range Countries {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Country{}, false
}
