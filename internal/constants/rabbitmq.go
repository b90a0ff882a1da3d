package constants

const PropertyFeedExchange = "property_feed_exchange"

// Имена очередей
const (
	QueueImportTasks = "property_feed_import_tasks"
)

// Ключи маршрутизации
const (
	RoutingKeyImportTasks = "feed.import.task"

	RoutingKeyImportProgress = "notify.import.progress"
	RoutingKeyImportFinished = "notify.import.finished"
	RoutingKeyImportFailed   = "notify.import.failed"
)

const (
	FinalDLXExchange   = "import_tasks_final_dlx"
	FinalDLQ           = "import_tasks_final_dlq"
	FinalDLQRoutingKey = "import_tasks.dlq.key"
)
