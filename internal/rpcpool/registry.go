package rpcpool

import "strings"

// DefaultFallbackURLs are public mainnet endpoints appended after configured ones.
var DefaultFallbackURLs = []string{
	"https://api.mainnet-beta.solana.com",
	"https://solana-rpc.publicnode.com",
	"https://rpc.ankr.com/solana",
}

// BuildEndpointURLs 合并主节点、额外节点（逗号分隔）与兜底节点，去重并保持顺序
func BuildEndpointURLs(primary, extras string, fallbacks []string) []string {
	candidates := make([]string, 0, 1+len(fallbacks)+4)
	candidates = append(candidates, primary)
	candidates = append(candidates, strings.Split(extras, ",")...)
	candidates = append(candidates, fallbacks...)

	seen := make(map[string]struct{}, len(candidates))
	urls := make([]string, 0, len(candidates))
	for _, raw := range candidates {
		u := normalizeURL(raw)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

func normalizeURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
