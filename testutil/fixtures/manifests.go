// =============================================================================
// 📦 测试数据工厂 - adagents.json 清单与属性
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/adregistry/adagents"
	"github.com/BaSui01/adregistry/types"
)

// =============================================================================
// 🏷️ 属性工厂
// =============================================================================

// Website 返回一个以 domain 为标识的网站属性
func Website(id, domain string, tags ...string) adagents.Property {
	return adagents.Property{
		PropertyID:   id,
		PropertyType: types.PropertyTypeWebsite,
		Name:         id,
		Identifiers:  []types.Identifier{{Type: "domain", Value: domain}},
		Tags:         tags,
	}
}

// Websites 返回 n 个网站属性，id 为 p1..pn，标识为 pN.domain
func Websites(domain string, n int) []adagents.Property {
	out := make([]adagents.Property, n)
	for i := range out {
		id := fmt.Sprintf("p%d", i+1)
		out[i] = Website(id, id+"."+domain)
	}
	return out
}

// =============================================================================
// 📄 清单工厂
// =============================================================================

// Manifest 返回授权 agentURL 出售全部属性的清单
func Manifest(agentURL string, props ...adagents.Property) *adagents.Manifest {
	return &adagents.Manifest{
		AuthorizedAgents: []adagents.AuthorizedAgent{{URL: agentURL, AuthorizedFor: "all inventory"}},
		Properties:       props,
	}
}

// ManifestFor 返回授权 agentURL 出售 propertyIDs 子集的清单
func ManifestFor(agentURL string, propertyIDs []string, props ...adagents.Property) *adagents.Manifest {
	return &adagents.Manifest{
		AuthorizedAgents: []adagents.AuthorizedAgent{{URL: agentURL, PropertyIDs: propertyIDs}},
		Properties:       props,
	}
}

// InvalidManifest 返回缺少 authorized_agents 的清单
func InvalidManifest() *adagents.Manifest {
	return &adagents.Manifest{}
}

// =============================================================================
// 🤖 代理工厂
// =============================================================================

// SalesAgent 返回注册的销售代理
func SalesAgent(url string) types.RegisteredAgent {
	return types.RegisteredAgent{
		URL:        url,
		Name:       "sales " + url,
		Type:       types.AgentTypeSales,
		Protocol:   types.ProtocolMCP,
		Visibility: types.VisibilityPublic,
		Member:     types.MemberInfo{MemberID: "m-" + url, MemberName: "Member"},
	}
}

// UntypedAgent 返回类型未知的注册代理
func UntypedAgent(url string) types.RegisteredAgent {
	a := SalesAgent(url)
	a.Type = types.AgentTypeUnknown
	return a
}

// Publisher 返回注册的发布商
func Publisher(domain string) types.RegisteredPublisher {
	return types.RegisteredPublisher{
		Domain:     domain,
		Visibility: types.VisibilityPublic,
		Member:     types.MemberInfo{MemberID: "m-" + domain, MemberName: "Publisher"},
	}
}
