package query

// Data holds the values of a create or update. Keys are scalar field names
// (foreign keys included) or relation names carrying a RelationWrite. Update
// values may also be Atomic operators.
type Data map[string]any

type CreateArgs struct {
	Data   Data
	Select *Selection
}

type CreateManyArgs struct {
	Data           []Data
	SkipDuplicates bool
}

type UpdateArgs struct {
	Where  UniqueWhere
	Data   Data
	Select *Selection
}

type UpdateManyArgs struct {
	Where Filter
	Data  Data
}

type UpsertArgs struct {
	Where  UniqueWhere
	Create Data
	Update Data
	Select *Selection
}

type DeleteArgs struct {
	Where  UniqueWhere
	Select *Selection
}

type DeleteManyArgs struct {
	Where Filter
}

// BatchPayload reports how many rows a multi-row mutation affected.
type BatchPayload struct {
	Count int64
}

// RelationWrite is a nested write on one relation. The variants are
// CreateRelated, ConnectRelated, ConnectOrCreateRelated, DisconnectRelated
// and SetRelated.
type RelationWrite interface {
	isRelationWrite()
}

// CreateRelated creates new related rows and links them.
type CreateRelated struct{ Data []Data }

// ConnectRelated links existing rows; each must exist.
type ConnectRelated struct{ Where []UniqueWhere }

type ConnectOrCreateItem struct {
	Where  UniqueWhere
	Create Data
}

// ConnectOrCreateRelated links the row matching Where, creating it from
// Create when it does not exist.
type ConnectOrCreateRelated struct{ Items []ConnectOrCreateItem }

// DisconnectRelated unlinks rows. On a to-one relation Where is ignored and
// the link itself is cleared.
type DisconnectRelated struct{ Where []UniqueWhere }

// SetRelated replaces every link of a list relation with Where.
type SetRelated struct{ Where []UniqueWhere }

func (CreateRelated) isRelationWrite()          {}
func (ConnectRelated) isRelationWrite()         {}
func (ConnectOrCreateRelated) isRelationWrite() {}
func (DisconnectRelated) isRelationWrite()      {}
func (SetRelated) isRelationWrite()             {}

func Create(data ...Data) RelationWrite { return CreateRelated{Data: data} }

func Connect(where ...UniqueWhere) RelationWrite { return ConnectRelated{Where: where} }

func ConnectOrCreate(items ...ConnectOrCreateItem) RelationWrite {
	return ConnectOrCreateRelated{Items: items}
}

func Disconnect(where ...UniqueWhere) RelationWrite { return DisconnectRelated{Where: where} }

func SetRelation(where ...UniqueWhere) RelationWrite { return SetRelated{Where: where} }

type AtomicOp string

const (
	AtomicSet       AtomicOp = "set"
	AtomicIncrement AtomicOp = "increment"
	AtomicDecrement AtomicOp = "decrement"
	AtomicMultiply  AtomicOp = "multiply"
	AtomicDivide    AtomicOp = "divide"
)

// Atomic is an update operator applied to the stored value.
type Atomic struct {
	Op    AtomicOp
	Value any
}

func SetValue(v any) Atomic { return Atomic{Op: AtomicSet, Value: v} }

func Increment(v any) Atomic { return Atomic{Op: AtomicIncrement, Value: v} }

func Decrement(v any) Atomic { return Atomic{Op: AtomicDecrement, Value: v} }

func Multiply(v any) Atomic { return Atomic{Op: AtomicMultiply, Value: v} }

func Divide(v any) Atomic { return Atomic{Op: AtomicDivide, Value: v} }
