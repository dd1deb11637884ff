package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSiteConfig = errors.New("invalid crawl config")

// SiteConfig names the element holding the product description on one shop.
// Readability applies only when ProductSelector is empty and extracts the
// main content of the page instead.
type SiteConfig struct {
	Domain          string `json:"domain" yaml:"domain"`
	ProductSelector string `json:"product_selector" yaml:"product_selector"`
	Readability     bool   `json:"readability,omitempty" yaml:"readability"`
}

type Sites []SiteConfig

type siteFile struct {
	Websites *[]SiteConfig `json:"websites" yaml:"websites"`
}

// LoadSites reads a crawl config of the form {"websites": [...]}. Files
// ending in .yaml or .yml are read as YAML with the same keys.
func LoadSites(path string) (Sites, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crawl config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseSitesYAML(data)
	default:
		return ParseSites(data)
	}
}

func ParseSites(data []byte) (Sites, error) {
	var f siteFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSiteConfig, err)
	}
	return f.validate()
}

func ParseSitesYAML(data []byte) (Sites, error) {
	var f siteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSiteConfig, err)
	}
	return f.validate()
}

func (f siteFile) validate() (Sites, error) {
	if f.Websites == nil {
		return nil, fmt.Errorf("%w: missing \"websites\" list", ErrInvalidSiteConfig)
	}

	sites := Sites(*f.Websites)
	for i, site := range sites {
		if strings.TrimSpace(site.Domain) == "" {
			return nil, fmt.Errorf("%w: website %d has no domain", ErrInvalidSiteConfig, i)
		}
		if site.ProductSelector == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(site.ProductSelector); err != nil {
			return nil, fmt.Errorf("%w: selector for %s: %v", ErrInvalidSiteConfig, site.Domain, err)
		}
	}
	return sites, nil
}

// SiteFor returns the first site whose domain occurs in host.
func (s Sites) SiteFor(host string) (SiteConfig, bool) {
	for _, site := range s {
		if strings.Contains(host, site.Domain) {
			return site, true
		}
	}
	return SiteConfig{}, false
}
