// Package auth hashes passwords and issues and verifies bearer tokens.
package auth

import "golang.org/x/crypto/bcrypt"

// DefaultCost is the bcrypt work factor used for interactive logins.
const DefaultCost = 10

// HashPassword returns a salted bcrypt hash of password at the given cost.
// A cost of zero selects DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// dummyHash is compared against when a username is unknown so that both
// failure paths spend the same bcrypt time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("expense-tracker"), DefaultCost)

// CheckMissingUser burns one bcrypt comparison and always returns false.
func CheckMissingUser(password string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
	return false
}
