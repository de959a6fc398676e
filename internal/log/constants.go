package log

const (
	KeyAppName   = "app"
	KeyTag       = "tag"
	KeyProcess   = "process"
	KeyConfig    = "config"
	KeyRequestID = "requestId"

	KeyIdentity   = "identity"
	KeyStore      = "store"
	KeyStoreKey   = "storeKey"
	KeyRegion     = "region"
	KeyProductID  = "productId"
	KeyQuantity   = "quantity"
	KeyCartItems  = "cartItems"
	KeyTotalItems = "totalItems"
	KeyOperations = "operations"
)
