package executor

import (
	"github.com/DoesN0tCompute/bamreconciler/internal/ipamclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// naturalKeySpec maps an ObjectType to its wire type name and the row
// attribute(s) that uniquely identify it for conflict-fallback lookup,
// mirroring the resolution table the import pipeline uses for 409 recovery.
type naturalKeySpec struct {
	wireName string
	attrs    []string
}

var naturalKeyTable = map[model.ObjectType]naturalKeySpec{
	model.ObjectBlock:                {"ip4_block", []string{"cidr"}},
	model.ObjectBlock6:                {"ip6_block", []string{"cidr"}},
	model.ObjectNetwork:               {"ip4_network", []string{"cidr"}},
	model.ObjectNetwork6:               {"ip6_network", []string{"cidr"}},
	model.ObjectAddress:               {"ip4_address", []string{"address"}},
	model.ObjectAddress6:               {"ip6_address", []string{"address"}},
	model.ObjectAddressGroup:          {"ip4_group", []string{"name"}},
	model.ObjectMACAddress:            {"mac_address", []string{"address"}},
	model.ObjectMACPool:               {"mac_pool", []string{"name"}},
	model.ObjectDHCPRange:             {"ipv4_dhcp_range", nil},
	model.ObjectDHCPRange6:             {"ipv6_dhcp_range", nil},
	model.ObjectDHCPClientClass:       {"dhcpv4_client_class", []string{"name"}},
	model.ObjectDHCPDeploymentRole:    {"dhcp_deployment_role", nil},
	model.ObjectDNSDeploymentRole:     {"dns_deployment_role", nil},
	model.ObjectDHCPClientDeployOpt:   {"dhcpv4_client_deployment_option", nil},
	model.ObjectDHCPServiceDeployOpt:  {"dhcpv4_service_deployment_option", nil},
	model.ObjectZone:                  {"dns_zone", []string{"zone_name"}},
	model.ObjectACL:                   {"acl", []string{"name"}},
	model.ObjectHostRecord:            {"host_record", []string{"name"}},
	model.ObjectExternalHostRecord:    {"external_host_record", []string{"name"}},
	model.ObjectAliasRecord:           {"alias_record", []string{"name"}},
	model.ObjectMXRecord:              {"mx_record", []string{"name"}},
	model.ObjectSRVRecord:             {"srv_record", []string{"name"}},
	model.ObjectTXTRecord:             {"txt_record", []string{"name"}},
	model.ObjectGenericRecord:         {"generic_record", []string{"name"}},
	model.ObjectDevice:                {"device", []string{"config", "name"}},
	model.ObjectDeviceType:            {"device_type", []string{"name"}},
	model.ObjectDeviceSubtype:         {"device_subtype", []string{"name"}},
	model.ObjectDeviceAddress:         {"device_address", nil},
	model.ObjectLocation:              {"location", []string{"code"}},
	model.ObjectTagGroup:              {"tag_group", []string{"name"}},
	model.ObjectTag:                   {"tag", []string{"name"}},
	model.ObjectResourceTag:           {"resource_tag", nil},
	model.ObjectUDFDefinition:         {"udf_definition", []string{"name"}},
	model.ObjectUDLDefinition:         {"udl_definition", []string{"name"}},
	model.ObjectUserDefinedLink:       {"user_defined_link", nil},
	model.ObjectAccessRight:           {"access_right", nil},
}

// naturalKeyFor builds the NaturalKeyFunc for objectType from its row
// attributes, or nil when the type has no stable natural key (link/role
// tables keyed entirely by their resolved foreign ids).
func naturalKeyFor(spec naturalKeySpec) NaturalKeyFunc {
	if len(spec.attrs) == 0 {
		return nil
	}
	return func(op *model.Operation) (map[string]string, bool) {
		if op.CSVRow == nil {
			return nil, false
		}
		key := make(map[string]string, len(spec.attrs))
		for _, attr := range spec.attrs {
			v, ok := op.CSVRow.Attr(attr)
			if !ok || v == "" {
				return nil, false
			}
			key[attr] = v
		}
		return key, true
	}
}

// RegisterDefaults registers one IPAMHandler per known ObjectType against
// client, covering the whole taxonomy in naturalKeyTable.
func RegisterDefaults(registry *Registry, client ipamclient.Client) {
	for objectType, spec := range naturalKeyTable {
		registry.Register(objectType, NewIPAMHandler(client, spec.wireName, naturalKeyFor(spec)))
	}
}

// WireName returns the IPAM wire-protocol type name for objectType, used by
// the resolver to look up pre-existing state before a diff is computed.
func WireName(objectType model.ObjectType) (string, bool) {
	spec, ok := naturalKeyTable[objectType]
	return spec.wireName, ok
}

// NaturalKey returns the natural-key extraction function for objectType, or
// nil if the type has none (see naturalKeyFor).
func NaturalKey(objectType model.ObjectType) NaturalKeyFunc {
	return naturalKeyFor(naturalKeyTable[objectType])
}
