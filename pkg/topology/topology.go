package topology

import (
	"errors"
	"fmt"
	"math/bits"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/config"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/graph"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/log"
	"github.com/nnydtmg/applicationsignals-adot-on-ecs/pkg/types"
)

// Resource types declared by this package
const (
	TypeVPC                   = "AWS::EC2::VPC"
	TypeSubnet                = "AWS::EC2::Subnet"
	TypeRouteTable            = "AWS::EC2::RouteTable"
	TypeRoute                 = "AWS::EC2::Route"
	TypeRouteTableAssociation = "AWS::EC2::SubnetRouteTableAssociation"
	TypeInternetGateway       = "AWS::EC2::InternetGateway"
	TypeGatewayAttachment     = "AWS::EC2::VPCGatewayAttachment"
	TypeEIP                   = "AWS::EC2::EIP"
	TypeNATGateway            = "AWS::EC2::NatGateway"
	TypeCluster               = "AWS::ECS::Cluster"
)

const (
	vpcID               = "Vpc"
	internetGatewayID   = "VpcIGW"
	gatewayAttachmentID = "VpcVPCGW"
	clusterID           = "Cluster"
)

// BuildNetwork carves the VPC CIDR into one public and one private subnet per
// availability zone, all private subnets sharing a single NAT gateway
func BuildNetwork(cfg config.Network) (*types.NetworkDescriptor, error) {
	_, base, err := net.ParseCIDR(cfg.CIDR)
	if err != nil {
		return nil, fmt.Errorf("failed to parse VPC CIDR: %w", err)
	}
	if cfg.MaxAZs < 1 {
		return nil, fmt.Errorf("max AZs must be at least 1, got %d", cfg.MaxAZs)
	}

	total := 2 * cfg.MaxAZs
	newBits := bits.Len(uint(total - 1))

	network := &types.NetworkDescriptor{
		LogicalID:         vpcID,
		CIDR:              base.String(),
		MaxAZs:            cfg.MaxAZs,
		NATGateways:       1,
		InternetGatewayID: internetGatewayID,
	}

	// Public subnets take the low blocks, private subnets the high ones
	for i := 0; i < total; i++ {
		block, err := cidr.Subnet(base, newBits, i)
		if err != nil {
			return nil, fmt.Errorf("failed to carve subnet %d from %s: %w", i, base, err)
		}

		role := types.SubnetRolePublic
		az := i
		prefix := "Public"
		if i >= cfg.MaxAZs {
			role = types.SubnetRolePrivate
			az = i - cfg.MaxAZs
			prefix = "Private"
		}

		name := fmt.Sprintf("%sSubnet%d", prefix, az+1)
		network.Subnets = append(network.Subnets, &types.Subnet{
			LogicalID:    vpcID + name + "Subnet",
			Name:         name,
			AZIndex:      az,
			CIDR:         block.String(),
			Role:         role,
			RouteTableID: vpcID + name + "RouteTable",
		})
	}

	// One NAT gateway in the first public subnet serves every private subnet
	natID := vpcID + network.PublicSubnets()[0].Name + "NATGateway"
	network.NATGatewayIDs = []string{natID}
	for _, s := range network.PrivateSubnets() {
		s.EgressNATID = natID
	}

	return network, nil
}

// BuildCluster declares the ECS cluster bound to the network
func BuildCluster(cfg config.Config, network *types.NetworkDescriptor) *types.ClusterDescriptor {
	return &types.ClusterDescriptor{
		LogicalID:         clusterID,
		Name:              cfg.StackName + "-cluster",
		NetworkID:         network.LogicalID,
		ContainerInsights: true,
	}
}

// Declare adds the network and cluster resources to the graph
func Declare(g *graph.Graph, network *types.NetworkDescriptor, cluster *types.ClusterDescriptor) error {
	logger := log.WithComponent("topology")

	if err := network.Validate(); err != nil {
		return err
	}

	var errs []error
	add := func(n *graph.Node) {
		logger.Debug().Str("logical_id", n.ID).Str("resource_type", n.Type).Msg("resource declared")
		errs = append(errs, g.AddNode(n))
	}

	add(&graph.Node{
		ID:   network.LogicalID,
		Type: TypeVPC,
		Properties: map[string]any{
			"CidrBlock":          network.CIDR,
			"EnableDnsHostnames": true,
			"EnableDnsSupport":   true,
			"InstanceTenancy":    "default",
			"Tags":               nameTag(network.LogicalID),
		},
	})
	add(&graph.Node{
		ID:         network.InternetGatewayID,
		Type:       TypeInternetGateway,
		Properties: map[string]any{"Tags": nameTag(network.LogicalID)},
	})
	add(&graph.Node{
		ID:   gatewayAttachmentID,
		Type: TypeGatewayAttachment,
		Properties: map[string]any{
			"VpcId":             graph.Ref{ID: network.LogicalID},
			"InternetGatewayId": graph.Ref{ID: network.InternetGatewayID},
		},
	})

	for _, s := range network.Subnets {
		add(&graph.Node{
			ID:   s.LogicalID,
			Type: TypeSubnet,
			Properties: map[string]any{
				"VpcId":               graph.Ref{ID: network.LogicalID},
				"AvailabilityZone":    graph.AZ(s.AZIndex),
				"CidrBlock":           s.CIDR,
				"MapPublicIpOnLaunch": s.Role == types.SubnetRolePublic,
				"Tags": []any{
					map[string]any{"Key": "Name", "Value": network.LogicalID + "/" + s.Name},
					map[string]any{"Key": "subnet-type", "Value": string(s.Role)},
				},
			},
		})
		add(&graph.Node{
			ID:   s.RouteTableID,
			Type: TypeRouteTable,
			Properties: map[string]any{
				"VpcId": graph.Ref{ID: network.LogicalID},
				"Tags":  nameTag(network.LogicalID + "/" + s.Name),
			},
		})
		add(&graph.Node{
			ID:   routeTableAssociationID(s),
			Type: TypeRouteTableAssociation,
			Properties: map[string]any{
				"RouteTableId": graph.Ref{ID: s.RouteTableID},
				"SubnetId":     graph.Ref{ID: s.LogicalID},
			},
		})
	}

	// Public egress goes straight to the internet gateway
	for _, s := range network.PublicSubnets() {
		add(&graph.Node{
			ID:   defaultRouteID(s),
			Type: TypeRoute,
			Properties: map[string]any{
				"RouteTableId":         graph.Ref{ID: s.RouteTableID},
				"DestinationCidrBlock": "0.0.0.0/0",
				"GatewayId":            graph.Ref{ID: network.InternetGatewayID},
			},
		})
	}

	host := network.PublicSubnets()[0]
	for _, natID := range network.NATGatewayIDs {
		eipID := vpcID + host.Name + "EIP"
		add(&graph.Node{
			ID:         eipID,
			Type:       TypeEIP,
			Properties: map[string]any{"Domain": "vpc", "Tags": nameTag(network.LogicalID + "/" + host.Name)},
		})
		add(&graph.Node{
			ID:   natID,
			Type: TypeNATGateway,
			Properties: map[string]any{
				"SubnetId":     graph.Ref{ID: host.LogicalID},
				"AllocationId": graph.Attr{ID: eipID, Name: "AllocationId"},
				"Tags":         nameTag(network.LogicalID + "/" + host.Name),
			},
		})
	}

	// Private egress goes through the shared NAT gateway
	for _, s := range network.PrivateSubnets() {
		add(&graph.Node{
			ID:   defaultRouteID(s),
			Type: TypeRoute,
			Properties: map[string]any{
				"RouteTableId":         graph.Ref{ID: s.RouteTableID},
				"DestinationCidrBlock": "0.0.0.0/0",
				"NatGatewayId":         graph.Ref{ID: s.EgressNATID},
			},
		})
	}

	add(&graph.Node{
		ID:   cluster.LogicalID,
		Type: TypeCluster,
		Properties: map[string]any{
			"ClusterName":     cluster.Name,
			"ClusterSettings": []any{containerInsights(cluster.ContainerInsights)},
		},
	})

	if err := errors.Join(errs...); err != nil {
		return err
	}

	// Routes to the internet gateway only work once it is attached
	for _, s := range network.PublicSubnets() {
		errs = append(errs, g.DependOn(defaultRouteID(s), gatewayAttachmentID))
	}
	for _, natID := range network.NATGatewayIDs {
		errs = append(errs, g.DependOn(natID, defaultRouteID(host)))
		errs = append(errs, g.DependOn(natID, routeTableAssociationID(host)))
	}

	return errors.Join(errs...)
}

func containerInsights(enabled bool) map[string]any {
	value := "disabled"
	if enabled {
		value = "enabled"
	}
	return map[string]any{"Name": "containerInsights", "Value": value}
}

func defaultRouteID(s *types.Subnet) string {
	return vpcID + s.Name + "DefaultRoute"
}

func routeTableAssociationID(s *types.Subnet) string {
	return vpcID + s.Name + "RouteTableAssociation"
}

func nameTag(name string) []any {
	return []any{map[string]any{"Key": "Name", "Value": name}}
}
