package paygate

import (
	"math/big"
)

// SchemeExact is the only payment scheme this service offers: the
// authorization transfers exactly the required amount.
const SchemeExact = "exact"

// DefaultMaxTimeoutSeconds bounds an authorization's validity window when a
// resource does not configure its own timeout.
const DefaultMaxTimeoutSeconds = 300

// assetDefaults carries per-network token defaults used when a resource
// config does not pin an asset explicitly.
type assetDefaults struct {
	address      string
	decimals     int
	tokenName    string
	tokenVersion string
}

var networkAssets = map[Network]assetDefaults{
	// Base Mainnet
	"eip155:8453": {
		address:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		decimals:     6,
		tokenName:    "USD Coin",
		tokenVersion: "2",
	},
	// Base Sepolia Testnet
	"eip155:84532": {
		address:      "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		decimals:     6,
		tokenName:    "USDC",
		tokenVersion: "2",
	},
}

// ResourceConfig defines the payment configuration for one protected
// resource. Price is a human-readable decimal amount of the asset
// (e.g. "0.01" for one cent of USDC).
type ResourceConfig struct {
	Description       string  `json:"description"`
	MimeType          string  `json:"mimeType"`
	PayTo             string  `json:"payTo"`
	Price             string  `json:"price"`
	Network           Network `json:"network"`
	Asset             string  `json:"asset,omitempty"`
	TokenName         string  `json:"tokenName,omitempty"`
	TokenVersion      string  `json:"tokenVersion,omitempty"`
	Decimals          int     `json:"decimals,omitempty"`
	MaxTimeoutSeconds int     `json:"maxTimeoutSeconds,omitempty"`
}

// RequirementRegistry derives payment requirements for protected resources
// from static configuration. It is a pure function of its config: building
// the registry validates the config once, and lookups have no side effects.
type RequirementRegistry struct {
	config       ResourceConfig
	requirements []PaymentRequirements
}

// NewRequirementRegistry validates the resource config and precomputes the
// ordered requirement set. Fails with a configuration_error PaymentError if
// no payee or price is configured, or if the network is unknown and no
// explicit asset is pinned.
func NewRequirementRegistry(config ResourceConfig) (*RequirementRegistry, error) {
	if config.PayTo == "" {
		return nil, NewPaymentError(ErrCodeConfiguration, "no payee address configured", nil)
	}
	if config.Price == "" {
		return nil, NewPaymentError(ErrCodeConfiguration, "no price configured", nil)
	}

	asset := config.Asset
	decimals := config.Decimals
	tokenName := config.TokenName
	tokenVersion := config.TokenVersion
	if defaults, ok := networkAssets[config.Network]; ok {
		if asset == "" {
			asset = defaults.address
		}
		if decimals == 0 {
			decimals = defaults.decimals
		}
		if tokenName == "" {
			tokenName = defaults.tokenName
		}
		if tokenVersion == "" {
			tokenVersion = defaults.tokenVersion
		}
	}
	if asset == "" {
		return nil, NewPaymentError(ErrCodeConfiguration,
			"no asset configured and no default for network "+string(config.Network), nil)
	}

	price, ok := new(big.Float).SetPrec(256).SetString(config.Price)
	if !ok {
		return nil, NewPaymentError(ErrCodeConfiguration, "invalid price: "+config.Price, nil)
	}

	maxTimeout := config.MaxTimeoutSeconds
	if maxTimeout == 0 {
		maxTimeout = DefaultMaxTimeoutSeconds
	}

	requirement := PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           config.Network,
		Asset:             asset,
		Amount:            AmountToBaseUnits(price, decimals).String(),
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: maxTimeout,
		Extra: map[string]interface{}{
			"name":    tokenName,
			"version": tokenVersion,
		},
	}

	return &RequirementRegistry{
		config:       config,
		requirements: []PaymentRequirements{requirement},
	}, nil
}

// Requirements returns the ordered set of acceptable payment requirements.
// The returned slice is a copy; callers may not mutate registry state.
func (r *RequirementRegistry) Requirements() []PaymentRequirements {
	out := make([]PaymentRequirements, len(r.requirements))
	copy(out, r.requirements)
	return out
}

// Challenge builds the PaymentRequired challenge for a resource URL,
// carrying the resource's true URL and configured description.
func (r *RequirementRegistry) Challenge(resourceURL string) PaymentRequired {
	return PaymentRequired{
		X402Version: ProtocolVersion,
		Error:       "payment required",
		Resource: &ResourceInfo{
			URL:         resourceURL,
			Description: r.config.Description,
			MimeType:    r.config.MimeType,
		},
		Accepts: r.Requirements(),
	}
}

// AmountToBaseUnits converts a human-readable amount into the asset's
// smallest unit using the token's decimals.
func AmountToBaseUnits(amount *big.Float, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	scaleFloat := new(big.Float).SetPrec(256).SetInt(scale)
	amountFloat := new(big.Float).SetPrec(256).Set(amount)
	res, _ := new(big.Float).Mul(amountFloat, scaleFloat).Int(nil)
	return res
}
