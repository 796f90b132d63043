package p2p

// Metric family names emitted by the direct transport.
const (
	MetricP2PMessagesTotal = "p2p_msgs_total"        // {direction,result}
	MetricP2PBytesTotal    = "p2p_bytes_total"       // {direction}
	MetricP2PStreamOpen    = "p2p_stream_open_total" // {result}
)
