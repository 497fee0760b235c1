package web3

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed tokens.yaml
var defaultTokenTable []byte

// TokenTable models the structure of the token table YAML file.
type TokenTable struct {
	NativeSentinel    string                       `yaml:"native_sentinel"`
	AllowanceContract string                       `yaml:"allowance_contract"`
	Networks          map[string]NetworkTokenTable `yaml:"networks"`
}

// NetworkTokenTable lists the tokens known on a single network.
type NetworkTokenTable struct {
	Native TokenDefinition   `yaml:"native"`
	Tokens []TokenDefinition `yaml:"tokens"`
}

// TokenDefinition describes one token entry.
type TokenDefinition struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// LoadTokenTable parses the embedded default table and, when path is set,
// merges the file on top of it network by network.
func LoadTokenTable(path string) (TokenTable, error) {
	table, err := parseTokenTable(defaultTokenTable)
	if err != nil {
		return TokenTable{}, fmt.Errorf("解析默认代币表失败: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return TokenTable{}, fmt.Errorf("读取代币表失败: %w", err)
	}
	override, err := parseTokenTable(content)
	if err != nil {
		return TokenTable{}, fmt.Errorf("解析代币表失败: %w", err)
	}
	if override.NativeSentinel != "" {
		table.NativeSentinel = override.NativeSentinel
	}
	if override.AllowanceContract != "" {
		table.AllowanceContract = override.AllowanceContract
	}
	for name, network := range override.Networks {
		table.Networks[name] = network
	}
	return table, nil
}

func parseTokenTable(content []byte) (TokenTable, error) {
	var table TokenTable
	if err := yaml.Unmarshal(content, &table); err != nil {
		return TokenTable{}, err
	}
	if table.Networks == nil {
		table.Networks = map[string]NetworkTokenTable{}
	}
	return table, nil
}
