package topology

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declare(t *testing.T, maxAZs int) (*graph.Graph, *types.NetworkDescriptor) {
	t.Helper()
	cfg := config.Default()
	cfg.Network.MaxAZs = maxAZs

	network, err := BuildNetwork(cfg.Network)
	require.NoError(t, err)

	g := graph.New()
	require.NoError(t, Declare(g, network, BuildCluster(cfg, network)))
	require.NoError(t, g.Validate())
	return g, network
}

func TestTwoZonesOneNAT(t *testing.T) {
	g, network := declare(t, 2)

	assert.Len(t, network.PublicSubnets(), 2)
	assert.Len(t, network.PrivateSubnets(), 2)
	assert.Equal(t, []string{"VpcPublicSubnet1NATGateway"}, network.NATGatewayIDs)

	counts := g.CountByType()
	assert.Equal(t, 1, counts[TypeVPC])
	assert.Equal(t, 4, counts[TypeSubnet])
	assert.Equal(t, 4, counts[TypeRouteTable])
	assert.Equal(t, 4, counts[TypeRouteTableAssociation])
	assert.Equal(t, 4, counts[TypeRoute])
	assert.Equal(t, 1, counts[TypeInternetGateway])
	assert.Equal(t, 1, counts[TypeNATGateway])
	assert.Equal(t, 1, counts[TypeEIP])
	assert.Equal(t, 1, counts[TypeCluster])
	assert.Equal(t, 22, g.Len())
}

func TestSingleNATRegardlessOfZones(t *testing.T) {
	for _, azs := range []int{1, 2, 3, 4} {
		g, network := declare(t, azs)

		assert.Len(t, g.NodesOfType(TypeNATGateway), 1, "azs=%d", azs)
		assert.Len(t, g.NodesOfType(TypeEIP), 1, "azs=%d", azs)
		require.Len(t, network.PrivateSubnets(), azs)

		nat := network.NATGatewayIDs[0]
		for _, s := range network.PrivateSubnets() {
			assert.Equal(t, nat, s.EgressNATID)

			route, ok := g.Node(defaultRouteID(s))
			require.True(t, ok)
			assert.Equal(t, graph.Ref{ID: nat}, route.Properties["NatGatewayId"])
		}
		assert.NoError(t, network.Validate())
	}
}

func TestSubnetsPartitionTheVPC(t *testing.T) {
	for _, azs := range []int{1, 2, 3} {
		_, network := declare(t, azs)
		vpc := netip.MustParsePrefix(network.CIDR)

		var prefixes []netip.Prefix
		for _, s := range network.Subnets {
			p, err := netip.ParsePrefix(s.CIDR)
			require.NoError(t, err)
			assert.True(t, vpc.Contains(p.Addr()), "%s outside %s", p, vpc)
			for _, other := range prefixes {
				assert.False(t, p.Overlaps(other), "%s overlaps %s", p, other)
			}
			prefixes = append(prefixes, p)
		}
	}
}

func TestSubnetLayout(t *testing.T) {
	_, network := declare(t, 2)

	var cidrs []string
	for _, s := range network.Subnets {
		cidrs = append(cidrs, s.CIDR)
	}
	assert.Equal(t, []string{"10.0.0.0/18", "10.0.64.0/18", "10.0.128.0/18", "10.0.192.0/18"}, cidrs)

	assert.Equal(t, 0, network.PrivateSubnets()[0].AZIndex)
	assert.Equal(t, 1, network.PrivateSubnets()[1].AZIndex)
}

func TestVPCProperties(t *testing.T) {
	g, _ := declare(t, 2)

	vpc, ok := g.Node(vpcID)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/16", vpc.Properties["CidrBlock"])
	assert.Equal(t, true, vpc.Properties["EnableDnsHostnames"])
	assert.Equal(t, true, vpc.Properties["EnableDnsSupport"])

	for _, s := range g.NodesOfType(TypeSubnet) {
		public := strings.HasPrefix(s.ID, "VpcPublic")
		assert.Equal(t, public, s.Properties["MapPublicIpOnLaunch"], s.ID)
	}
}

func TestRouteOrdering(t *testing.T) {
	g, network := declare(t, 2)

	for _, s := range network.PublicSubnets() {
		assert.Equal(t, []string{gatewayAttachmentID}, g.ExplicitDependenciesOf(defaultRouteID(s)))
	}

	nat := network.NATGatewayIDs[0]
	assert.True(t, g.DependsTransitively(nat, gatewayAttachmentID))
	assert.True(t, g.HasDependency(nat, "VpcPublicSubnet1Subnet"))
}

func TestClusterInsights(t *testing.T) {
	g, _ := declare(t, 2)

	cluster, ok := g.Node(clusterID)
	require.True(t, ok)
	assert.Equal(t, "AppSignalsStack-cluster", cluster.Properties["ClusterName"])
	assert.Equal(t, []any{map[string]any{"Name": "containerInsights", "Value": "enabled"}}, cluster.Properties["ClusterSettings"])
}

func TestVPCCIDRIsCanonical(t *testing.T) {
	network, err := BuildNetwork(config.Network{CIDR: "10.0.0.1/16", MaxAZs: 2, NATGateways: 1})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/16", network.CIDR)
	assert.Equal(t, "10.0.0.0/18", network.Subnets[0].CIDR)

	g := graph.New()
	require.NoError(t, Declare(g, network, BuildCluster(config.Default(), network)))
	vpc, ok := g.Node(vpcID)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/16", vpc.Properties["CidrBlock"])
}

func TestBuildNetworkErrors(t *testing.T) {
	_, err := BuildNetwork(config.Network{CIDR: "not-a-cidr", MaxAZs: 2, NATGateways: 1})
	assert.Error(t, err)

	_, err = BuildNetwork(config.Network{CIDR: "10.0.0.0/16", MaxAZs: 0, NATGateways: 1})
	assert.Error(t, err)

	// Too many zones for the prefix to split
	_, err = BuildNetwork(config.Network{CIDR: "10.0.0.0/31", MaxAZs: 3, NATGateways: 1})
	assert.Error(t, err)
}
