package depgraph

import (
	"strconv"
	"strings"

	"github.com/DoesN0tCompute/bamreconciler/internal/model"
)

// pathSegments splits a path-like attribute the way the source importer
// does: when the path contains "/" and its last "/"-segment is all digits (a
// CIDR form such as "Default/10.0.0.0/8"), the whole path is kept as one
// segment; everything else splits on "/" first, falling back to "." when no
// "/" is present.
func pathSegments(path string) []string {
	if path == "" {
		return nil
	}
	if strings.Contains(path, "/") {
		tail := path[strings.LastIndex(path, "/")+1:]
		if isDigits(tail) {
			return []string{path}
		}
		var segs []string
		for _, s := range strings.Split(path, "/") {
			if s != "" {
				segs = append(segs, s)
			}
		}
		return segs
	}
	if strings.Contains(path, ".") {
		return strings.Split(path, ".")
	}
	return []string{path}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isChildOf reports whether childPath is a strict descendant of parentPath:
// parentPath's segments must be a strict prefix of childPath's segments.
func isChildOf(parentPath, childPath string) bool {
	parent := pathSegments(parentPath)
	child := pathSegments(childPath)
	if len(parent) == 0 || len(parent) >= len(child) {
		return false
	}
	for i, seg := range parent {
		if child[i] != seg {
			return false
		}
	}
	return true
}

// cidrInPath reports whether cidr appears as two consecutive whole segments
// {address, prefix} within path — e.g. cidr "10.0.0.0/8" matches a path
// segment sequence containing "10.0.0.0" immediately followed by "8", and
// does not match on substrings (so "10.0.0.0/80" and "110.0.0.0/8" are both
// rejected).
func cidrInPath(cidr, path string) bool {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return false
	}
	address, prefix := parts[0], parts[1]
	segs := splitAllSlash(path)
	for i := 0; i+1 < len(segs); i++ {
		if segs[i] == address && segs[i+1] == prefix {
			return true
		}
	}
	return false
}

func splitAllSlash(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AutoDetect wires dependency edges for the given operations using the
// graph's already-registered nodes: parent/child DELETE ordering,
// path/CIDR-based parent resolution, and record-reference edges. Callers
// must have called AddNode for every operation first.
func (g *Graph) AutoDetect(ops []*model.Operation) error {
	hostRecordsByName := map[string]*model.Operation{}
	for _, op := range ops {
		if op.ObjectType == model.ObjectHostRecord || op.ObjectType == model.ObjectExternalHostRecord {
			if name, ok := op.CSVRow.Attr("name"); ok {
				hostRecordsByName[name] = op
			}
		}
	}

	for _, op := range ops {
		row := op.CSVRow
		if row == nil {
			continue
		}
		switch op.OperationType {
		case model.OpDelete:
			if err := g.wireDeleteChildOrdering(op, ops); err != nil {
				return err
			}
		case model.OpCreate, model.OpUpdate:
			if err := g.wireParentPath(op, ops); err != nil {
				return err
			}
			if err := g.wireTypeSpecific(op, ops, hostRecordsByName); err != nil {
				return err
			}
			if err := g.wireRecordReferences(op, hostRecordsByName); err != nil {
				return err
			}
			if err := g.wireLocationDeferred(op); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) wireDeleteChildOrdering(op *model.Operation, ops []*model.Operation) error {
	parentPath, hasParent := pathAttr(op.CSVRow)
	if !hasParent {
		return nil
	}
	for _, other := range ops {
		if other == op || other.OperationType != model.OpDelete {
			continue
		}
		childPath, ok := pathAttr(other.CSVRow)
		if !ok {
			continue
		}
		if isChildOf(parentPath, childPath) {
			if err := g.AddDependency(op.NodeID(), other.NodeID(), model.DepParentChild); err != nil {
				return err
			}
		}
	}
	return nil
}

func pathAttr(row model.Row) (string, bool) {
	for _, name := range []string{"config", "parent", "view_path"} {
		if v, ok := row.Attr(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (g *Graph) wireParentPath(op *model.Operation, ops []*model.Operation) error {
	switch op.ObjectType {
	case model.ObjectNetwork, model.ObjectNetwork6, model.ObjectAddress, model.ObjectAddress6, model.ObjectHostRecord:
	default:
		return nil
	}
	parentVal, ok := pathAttr(op.CSVRow)
	if !ok {
		return nil
	}
	for _, other := range ops {
		if other == op {
			continue
		}
		otherPath, ok := pathAttr(other.CSVRow)
		if !ok {
			continue
		}
		if otherPath == parentVal {
			return g.AddDependency(op.NodeID(), other.NodeID(), model.DepParentChild)
		}
	}
	return nil
}

func (g *Graph) wireTypeSpecific(op *model.Operation, ops []*model.Operation, hostRecords map[string]*model.Operation) error {
	row := op.CSVRow
	switch op.ObjectType {
	case model.ObjectNetwork:
		return g.wireCIDRContainment(op, ops, model.ObjectBlock)
	case model.ObjectAddress:
		return g.wireCIDRContainment(op, ops, model.ObjectNetwork)
	case model.ObjectDHCPRange:
		if cidr, ok := row.Attr("_deferred_network_cidr"); ok {
			return g.wireByAttrMatch(op, ops, model.ObjectNetwork, "cidr", cidr)
		}
	case model.ObjectDeviceSubtype:
		if name, ok := row.Attr("device_type_name"); ok {
			return g.wireByAttrMatch(op, ops, model.ObjectDeviceType, "name", name)
		}
	case model.ObjectDevice:
		if name, ok := row.Attr("device_type_name"); ok {
			if err := g.wireByAttrMatch(op, ops, model.ObjectDeviceType, "name", name); err != nil {
				return err
			}
		}
		if name, ok := row.Attr("device_subtype_name"); ok {
			if err := g.wireByAttrMatch(op, ops, model.ObjectDeviceSubtype, "name", name); err != nil {
				return err
			}
		}
	case model.ObjectHostRecord:
		if err := g.wireZone(op, ops); err != nil {
			return err
		}
		if addrs, ok := row.Attr("addresses"); ok {
			return g.wireHostRecordAddresses(op, ops, addrs)
		}
	case model.ObjectDHCPDeploymentRole, model.ObjectDNSDeploymentRole:
		return g.wireDeploymentRole(op, ops)
	case model.ObjectUserDefinedLink:
		return g.wireUserDefinedLink(op, ops)
	case model.ObjectAliasRecord, model.ObjectMXRecord, model.ObjectSRVRecord,
		model.ObjectTXTRecord, model.ObjectGenericRecord, model.ObjectExternalHostRecord:
		return g.wireZone(op, ops)
	}
	return nil
}

func (g *Graph) wireZone(op *model.Operation, ops []*model.Operation) error {
	row := op.CSVRow
	zoneName, ok := row.Attr("zone_name")
	if !ok {
		zoneName, ok = row.Attr("_deferred_zone_name")
	}
	if !ok {
		return nil
	}
	viewPath, _ := row.Attr("view_path")
	config := row.Config()
	for _, other := range ops {
		if other.ObjectType != model.ObjectZone {
			continue
		}
		otherZone, ok := other.CSVRow.Attr("zone_name")
		if !ok || otherZone != zoneName {
			continue
		}
		otherView, _ := other.CSVRow.Attr("view_path")
		if otherView != viewPath || other.CSVRow.Config() != config {
			continue
		}
		return g.AddDependency(op.NodeID(), other.NodeID(), model.DepPrerequisite)
	}
	return nil
}

func (g *Graph) wireCIDRContainment(op *model.Operation, ops []*model.Operation, containerType model.ObjectType) error {
	parentVal, ok := op.CSVRow.Attr("parent")
	if !ok || parentVal == "" {
		return nil
	}
	for _, other := range ops {
		if other.ObjectType != containerType || other.CSVRow.Config() != op.CSVRow.Config() {
			continue
		}
		cidr, ok := other.CSVRow.Attr("cidr")
		if !ok {
			continue
		}
		if cidrInPath(cidr, parentVal) {
			if err := g.AddDependency(op.NodeID(), other.NodeID(), model.DepPrerequisite); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) wireByAttrMatch(op *model.Operation, ops []*model.Operation, targetType model.ObjectType, attr, value string) error {
	for _, other := range ops {
		if other.ObjectType != targetType {
			continue
		}
		v, ok := other.CSVRow.Attr(attr)
		if ok && v == value {
			return g.AddDependency(op.NodeID(), other.NodeID(), model.DepPrerequisite)
		}
	}
	return nil
}

func (g *Graph) wireHostRecordAddresses(op *model.Operation, ops []*model.Operation, addrList string) error {
	addresses := strings.Split(addrList, "|")
	for _, other := range ops {
		if other.ObjectType != model.ObjectNetwork {
			continue
		}
		cidr, ok := other.CSVRow.Attr("cidr")
		if !ok {
			continue
		}
		for _, addr := range addresses {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			if addressInCIDR(addr, cidr) {
				if err := g.AddDependency(op.NodeID(), other.NodeID(), model.DepPrerequisite); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

// addressInCIDR is a minimal IPv4-in-CIDR containment check sufficient for
// dotted-quad addresses as they appear in CSV rows.
func addressInCIDR(addr, cidr string) bool {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return false
	}
	prefixLen, err := strconv.Atoi(parts[1])
	if err != nil || prefixLen < 0 || prefixLen > 32 {
		return false
	}
	netIP, ok := ipv4ToUint32(parts[0])
	if !ok {
		return false
	}
	addrIP, ok := ipv4ToUint32(addr)
	if !ok {
		return false
	}
	if prefixLen == 0 {
		return true
	}
	mask := ^uint32(0) << uint(32-prefixLen)
	return netIP&mask == addrIP&mask
}

func ipv4ToUint32(s string) (uint32, bool) {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return 0, false
	}
	var out uint32
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		out = out<<8 | uint32(n)
	}
	return out, true
}

func (g *Graph) wireDeploymentRole(op *model.Operation, ops []*model.Operation) error {
	row := op.CSVRow
	if v, ok := firstAttr(row, "_deferred_network_cidr", "network_id"); ok {
		if err := g.wireByAttrMatch(op, ops, model.ObjectNetwork, "cidr", v); err != nil {
			return err
		}
	}
	if v, ok := firstAttr(row, "_deferred_block_cidr", "block_id"); ok {
		if err := g.wireByAttrMatch(op, ops, model.ObjectBlock, "cidr", v); err != nil {
			return err
		}
	}
	if v, ok := firstAttr(row, "_deferred_zone_name", "zone_name"); ok {
		if err := g.wireByAttrMatch(op, ops, model.ObjectZone, "zone_name", v); err != nil {
			return err
		}
	}
	return nil
}

func firstAttr(row model.Row, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := row.Attr(n); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (g *Graph) wireUserDefinedLink(op *model.Operation, ops []*model.Operation) error {
	row := op.CSVRow
	sourceType, _ := row.Attr("source_type")
	sourcePath, _ := row.Attr("source_path")
	destType, _ := row.Attr("destination_type")
	destPath, _ := row.Attr("destination_path")

	if sourceType != "" && sourcePath != "" {
		if target := resolveLinkEndpoint(model.ObjectType(sourceType), sourcePath, ops); target != nil {
			if err := g.AddDependency(op.NodeID(), target.NodeID(), model.DepReference); err != nil {
				return err
			}
		}
	}
	if destType != "" && destPath != "" {
		if target := resolveLinkEndpoint(model.ObjectType(destType), destPath, ops); target != nil {
			if err := g.AddDependency(op.NodeID(), target.NodeID(), model.DepReference); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveLinkEndpoint looks up a user_defined_link endpoint across
// addresses/networks/blocks/devices(config+name, then bare name)/zones,
// matching the original importer's per-type lookup tables.
func resolveLinkEndpoint(objType model.ObjectType, path string, ops []*model.Operation) *model.Operation {
	for _, other := range ops {
		if other.ObjectType != objType {
			continue
		}
		switch objType {
		case model.ObjectDevice:
			if name, ok := other.CSVRow.Attr("name"); ok {
				if path == other.CSVRow.Config()+"/"+name || path == name {
					return other
				}
			}
		case model.ObjectZone:
			if zn, ok := other.CSVRow.Attr("zone_name"); ok && zn == path {
				return other
			}
		default:
			if p, ok := pathAttr(other.CSVRow); ok && p == path {
				return other
			}
			if addr, ok := other.CSVRow.Attr("address"); ok && addr == path {
				return other
			}
			if cidr, ok := other.CSVRow.Attr("cidr"); ok && cidr == path {
				return other
			}
		}
	}
	return nil
}

func (g *Graph) wireRecordReferences(op *model.Operation, hostRecords map[string]*model.Operation) error {
	var refAttr string
	switch op.ObjectType {
	case model.ObjectAliasRecord:
		refAttr = "linked_record_name"
	case model.ObjectMXRecord:
		refAttr = "exchange"
	case model.ObjectSRVRecord:
		refAttr = "target"
	default:
		return nil
	}
	name, ok := op.CSVRow.Attr(refAttr)
	if !ok {
		return nil
	}
	target, ok := hostRecords[name]
	if !ok {
		return nil
	}
	return g.AddDependency(op.NodeID(), target.NodeID(), model.DepReference)
}

// wireLocationDeferred wires any operation (including a nested location
// under its parent location) that carries a "_deferred_location_code"
// attribute to the location whose "code" matches.
func (g *Graph) wireLocationDeferred(op *model.Operation) error {
	code, ok := op.CSVRow.Attr("_deferred_location_code")
	if !ok {
		return nil
	}
	for _, other := range g.nodes {
		if other.Operation.ObjectType != model.ObjectLocation {
			continue
		}
		if c, ok := other.Operation.CSVRow.Attr("code"); ok && c == code {
			return g.AddDependency(op.NodeID(), other.NodeID(), model.DepPrerequisite)
		}
	}
	return nil
}
