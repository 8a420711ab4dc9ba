package orders

import "strconv"

const (
	TopicOrderCreated = "order.created"
)

func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
