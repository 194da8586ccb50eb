package graph

// Ref resolves to the physical ID of another resource
type Ref struct {
	ID string
}

// Attr resolves to an attribute of another resource once it exists
type Attr struct {
	ID   string
	Name string
}

// Join concatenates parts, any of which may be intrinsics
type Join struct {
	Separator string
	Parts     []any
}

// Pseudo is an engine-provided parameter such as AWS::Region
type Pseudo string

const (
	PseudoRegion    Pseudo = "AWS::Region"
	PseudoAccountID Pseudo = "AWS::AccountId"
	PseudoStackName Pseudo = "AWS::StackName"
	PseudoPartition Pseudo = "AWS::Partition"
)

// AZ selects the n-th availability zone of the deployment region
type AZ int

// References returns the IDs of every resource referenced inside v, in encounter order
func References(v any) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case Ref:
			add(t.ID)
		case *Ref:
			add(t.ID)
		case Attr:
			add(t.ID)
		case *Attr:
			add(t.ID)
		case Join:
			for _, p := range t.Parts {
				walk(p)
			}
		case map[string]any:
			for _, k := range sortedKeys(t) {
				walk(t[k])
			}
		case []any:
			for _, e := range t {
				walk(e)
			}
		case []map[string]any:
			for _, e := range t {
				walk(e)
			}
		}
	}
	walk(v)
	return out
}
