package broker

// Broker subjects, versioned under vss.v1.
const (
	SubjectMetadataList = "vss.v1.metadata.list"
	SubjectValueGet     = "vss.v1.value.get"
	SubjectActuate      = "vss.v1.actuate"
	SubjectValuePublish = "vss.v1.value.publish"
	SubjectProviderOpen = "vss.v1.provider.open"
	SubjectSubscribe    = "vss.v1.subscribe"
)
