package configs

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"
)

// RPCEndpointPlaceholder is substituted with a concrete endpoint by Render.
const RPCEndpointPlaceholder = "%%RPC_ENDPOINT%%"

// PaymentsTemplate is the default balance checker configuration.
// It is embedded at compile time so scenarios can run without a checkout.
//
//go:embed config-payments_template.toml
var PaymentsTemplate []byte

// NetworkInfo describes a preset network shipped in PaymentsTemplate
type NetworkInfo struct {
	Key        string
	ChainID    uint64
	Name       string
	HasWrapper bool
}

// Networks lists the presets of PaymentsTemplate keyed by network name
var Networks = map[string]NetworkInfo{
	"mainnet": {Key: "mainnet", ChainID: 1, Name: "Mainnet"},
	"polygon": {Key: "polygon", ChainID: 137, Name: "Polygon PoS", HasWrapper: true},
	"holesky": {Key: "holesky", ChainID: 17000, Name: "Holesky Testnet", HasWrapper: true},
	"amoy":    {Key: "amoy", ChainID: 80002, Name: "Polygon Amoy Testnet"},
	"sepolia": {Key: "sepolia", ChainID: 11155111, Name: "Sepolia Testnet"},
}

// Render returns PaymentsTemplate with every endpoint placeholder replaced
func Render(endpoint string) []byte {
	return RenderTemplate(PaymentsTemplate, endpoint)
}

// RenderTemplate replaces the endpoint placeholder in an arbitrary template
func RenderTemplate(template []byte, endpoint string) []byte {
	return bytes.ReplaceAll(template, []byte(RPCEndpointPlaceholder), []byte(endpoint))
}

// GetNetwork returns the preset for a network name
func GetNetwork(name string) (NetworkInfo, bool) {
	n, ok := Networks[strings.ToLower(name)]
	return n, ok
}

// NetworkNames returns the preset names in sorted order
func NetworkNames() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
