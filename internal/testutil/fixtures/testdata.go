// Package fixtures holds shared test data for the ByteBites test suites.
package fixtures

// Users.
const (
	CustomerEmail = "alice@example.com"
	OwnerEmail    = "bob@example.com"
	AdminEmail    = "carol@example.com"
	Password      = "correct horse battery staple"
	WrongPassword = "hunter2"
)

// Key identifiers and issuers.
const (
	KeyID      = "bytebites-test-key"
	AltKeyID   = "bytebites-rotated-key"
	Issuer     = "https://auth.bytebites.test"
	JWKSPath   = "/.well-known/jwks.json"
	HMACKeyB64 = "c3VwZXItc2VjcmV0LWhtYWMta2V5LWZvci10ZXN0cy0xMjM0NTY3OA=="
)

// Orders.
const (
	RestaurantID      = "r-100"
	OtherRestaurantID = "r-200"
	MenuItemBurger    = "m-burger"
	MenuItemFries     = "m-fries"
	DeliveryAddress   = "1 Main St"
)
