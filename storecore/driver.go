package storecore

// Driver identifies the backend a Client talks to.
type Driver string

const (
	DriverMemcached Driver = "memcached"
	DriverMemory    Driver = "memory"
	DriverRedis     Driver = "redis"
	DriverNATS      Driver = "nats"
	DriverDynamo    Driver = "dynamodb"
	DriverSQL       Driver = "sql"
	DriverFile      Driver = "file"
	DriverNull      Driver = "null"
	DriverBigcache  Driver = "bigcache"
	DriverFreecache Driver = "freecache"
	DriverFake      Driver = "fake"
)

// DriverOf reports the driver of client when it exposes one.
func DriverOf(client any) Driver {
	if d, ok := client.(interface{ Driver() Driver }); ok {
		return d.Driver()
	}
	return ""
}
