// Package model defines the data types shared across the reconciliation
// pipeline: desired-state rows, operations, diff results, dependency nodes,
// execution plans, and the persisted checkpoint/change-log records.
package model

// ObjectType tags the taxonomy of resources the engine reconciles.
type ObjectType string

const (
	ObjectBlock                ObjectType = "ip4_block"
	ObjectBlock6               ObjectType = "ip6_block"
	ObjectNetwork              ObjectType = "ip4_network"
	ObjectNetwork6             ObjectType = "ip6_network"
	ObjectAddress              ObjectType = "ip4_address"
	ObjectAddress6             ObjectType = "ip6_address"
	ObjectAddressGroup         ObjectType = "ip4_group"
	ObjectMACAddress           ObjectType = "mac_address"
	ObjectMACPool              ObjectType = "mac_pool"
	ObjectDHCPRange            ObjectType = "ipv4_dhcp_range"
	ObjectDHCPRange6           ObjectType = "ipv6_dhcp_range"
	ObjectDHCPClientClass      ObjectType = "dhcpv4_client_class"
	ObjectDHCPDeploymentRole   ObjectType = "dhcp_deployment_role"
	ObjectDNSDeploymentRole    ObjectType = "dns_deployment_role"
	ObjectDHCPClientDeployOpt  ObjectType = "dhcpv4_client_deployment_option"
	ObjectDHCPServiceDeployOpt ObjectType = "dhcpv4_service_deployment_option"
	ObjectZone                 ObjectType = "dns_zone"
	ObjectACL                  ObjectType = "acl"
	ObjectHostRecord           ObjectType = "host_record"
	ObjectExternalHostRecord   ObjectType = "external_host_record"
	ObjectAliasRecord          ObjectType = "alias_record"
	ObjectMXRecord             ObjectType = "mx_record"
	ObjectSRVRecord            ObjectType = "srv_record"
	ObjectTXTRecord            ObjectType = "txt_record"
	ObjectGenericRecord        ObjectType = "generic_record"
	ObjectDevice               ObjectType = "device"
	ObjectDeviceType           ObjectType = "device_type"
	ObjectDeviceSubtype        ObjectType = "device_subtype"
	ObjectDeviceAddress        ObjectType = "device_address"
	ObjectLocation             ObjectType = "location"
	ObjectTagGroup             ObjectType = "tag_group"
	ObjectTag                  ObjectType = "tag"
	ObjectResourceTag          ObjectType = "resource_tag"
	ObjectUDFDefinition        ObjectType = "udf_definition"
	ObjectUDLDefinition        ObjectType = "udl_definition"
	ObjectUserDefinedLink      ObjectType = "user_defined_link"
	ObjectAccessRight          ObjectType = "access_right"
	ObjectSystemBarrier        ObjectType = "system_barrier"
)

// Action is the desired mutation a Row requests.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Row is the common read-only surface every desired-state row exposes. Every
// object type is represented by the generic AttrRow, which holds the
// type-specific fields in a string-keyed attribute map; there is no separate
// struct per object type.
type Row interface {
	RowID() string
	Type() ObjectType
	GetAction() Action
	Config() string
	// Attr returns a secondary attribute by name for callers (the graph
	// builder, the diff engine) that need generic path/parent/zone access
	// across heterogeneous row types. Ok is false when the row has no such
	// attribute.
	Attr(name string) (value string, ok bool)
	BamID() (id int64, ok bool)
}

// BaseRow carries the fields common to every object type and is embedded by
// concrete row structs.
type BaseRow struct {
	ID         string
	ObjectType ObjectType
	Action     Action
	ConfigName string
	BamIDValue *int64
}

func (b BaseRow) RowID() string      { return b.ID }
func (b BaseRow) Type() ObjectType    { return b.ObjectType }
func (b BaseRow) GetAction() Action   { return b.Action }
func (b BaseRow) Config() string      { return b.ConfigName }

func (b BaseRow) BamID() (int64, bool) {
	if b.BamIDValue == nil {
		return 0, false
	}
	return *b.BamIDValue, true
}

// AttrRow is the row type used for every object type: the base fields plus
// a string-keyed map of named attributes, read through Row.Attr and
// AllAttrs.
type AttrRow struct {
	BaseRow
	Attrs map[string]string
}

func (a AttrRow) Attr(name string) (string, bool) {
	v, ok := a.Attrs[name]
	return v, ok
}

// AllAttrs returns the full attribute map, used by the diff engine to
// enumerate every field for change detection.
func (a AttrRow) AllAttrs() map[string]string {
	return a.Attrs
}

// NewRow builds an AttrRow. The CSV parser and the session's orphan
// operations build their rows with it, and the engine's tests use it to build
// rows without going through the CSV parser.
func NewRow(objectType ObjectType, rowID string, action Action, config string, attrs map[string]string) *AttrRow {
	return &AttrRow{
		BaseRow: BaseRow{ID: rowID, ObjectType: objectType, Action: action, ConfigName: config},
		Attrs:   attrs,
	}
}

// WithBamID sets the optional server-assigned id on a row built via NewRow.
func (a *AttrRow) WithBamID(id int64) *AttrRow {
	a.BamIDValue = &id
	return a
}

// NodeID returns the globally unique dependency-graph node identifier for a
// row: "{object_type}:{row_id}".
func NodeID(objectType ObjectType, rowID string) string {
	return string(objectType) + ":" + rowID
}
