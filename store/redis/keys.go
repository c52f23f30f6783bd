package redis

// Key prefixes for primary entity storage.
const (
	prefixEvent       = "beacon:evt:"
	prefixConversion  = "beacon:conv:"
	prefixDestination = "beacon:dest:"
	prefixJob         = "beacon:job:"
	prefixDLQ         = "beacon:dlq:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventExtID   = "beacon:u:evt:ext:"
	uniqueDestTypeName = "beacon:u:dest:tn:"
)

// Key prefixes for sorted set indexes.
const (
	zEventAll      = "beacon:z:evt:all"
	zConversionAll = "beacon:z:conv:all"
	zDestAll       = "beacon:z:dest:all"
	zJobAll        = "beacon:z:job:all"
	zJobQueued     = "beacon:z:job:queued"
	zDLQAll        = "beacon:z:dlq:all"
	zDLQDest       = "beacon:z:dlq:dest:" // + destination ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
