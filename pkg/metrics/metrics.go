package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// HTTP Метрики (общие для всех сервисов)
// =============================================================================

// HttpRequestsTotal - счётчик всех HTTP запросов
// Labels: service, method, path, status
// Пример запроса PromQL: rate(http_requests_total{service="orders"}[5m])
var HttpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	},
	[]string{"service", "method", "path", "status"},
)

// HttpRequestDuration - гистограмма времени ответа (latency_seconds из ТЗ)
// Labels: service, method, path
// Пример: histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))
var HttpRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of HTTP requests in seconds",
		// Бакеты для микросервисов: от 1ms до 10s
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"service", "method", "path"},
)

// HttpRequestsInFlight - текущее количество обрабатываемых запросов
var HttpRequestsInFlight = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Current number of HTTP requests being processed",
	},
	[]string{"service"},
)

// =============================================================================
// Database Метрики
// =============================================================================

// DbQueryDuration - время выполнения SQL запросов
var DbQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"service", "operation", "table"},
)

// DbConnectionsOpen - количество открытых соединений с БД
var DbConnectionsOpen = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_connections_open",
		Help: "Number of open database connections",
	},
	[]string{"service", "state"}, // state: idle, in_use
)

// DbErrors - счётчик ошибок базы данных
var DbErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "db_errors_total",
		Help: "Total number of database errors",
	},
	[]string{"service", "operation"},
)

// =============================================================================
// Redis Метрики (redis_ops из ТЗ)
// =============================================================================

// RedisCacheHits - попадания в кеш
var RedisCacheHits = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_cache_hits_total",
		Help: "Total number of Redis cache hits",
	},
	[]string{"service", "key_prefix"},
)

// RedisCacheMisses - промахи кеша
var RedisCacheMisses = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_cache_misses_total",
		Help: "Total number of Redis cache misses",
	},
	[]string{"service", "key_prefix"},
)

// RedisOperationDuration - время операций Redis
var RedisOperationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	},
	[]string{"service", "operation"}, // operation: get, set, del, etc.
)

// RedisErrors - ошибки Redis
var RedisErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	},
	[]string{"service", "operation"},
)

// =============================================================================
// Kafka Метрики (kafka_lag из ТЗ)
// =============================================================================

// KafkaMessagesProduced - отправленные сообщения
var KafkaMessagesProduced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_messages_produced_total",
		Help: "Total number of Kafka messages produced",
	},
	[]string{"service", "topic"},
)

// KafkaMessagesConsumed - полученные сообщения
var KafkaMessagesConsumed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_messages_consumed_total",
		Help: "Total number of Kafka messages consumed",
	},
	[]string{"service", "topic", "group"},
)

// KafkaProduceDuration - время отправки сообщения
var KafkaProduceDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kafka_produce_duration_seconds",
		Help:    "Duration of Kafka produce operations",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	},
	[]string{"service", "topic"},
)

// KafkaConsumeDuration - время обработки сообщения
var KafkaConsumeDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kafka_consume_duration_seconds",
		Help:    "Duration of Kafka message processing",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
	[]string{"service", "topic"},
)

// KafkaErrors - ошибки Kafka
var KafkaErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_errors_total",
		Help: "Total number of Kafka errors",
	},
	[]string{"service", "topic", "operation"}, // operation: produce, consume
)

// =============================================================================
// Business Метрики (ShopSmart pricing)
// =============================================================================

// PriceMutations - изменения цен по типу операции и результату
// Labels: operation (upsert, remove), result (success, invalid, not_found, conflict, error)
var PriceMutations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_price_mutations_total",
		Help: "Total number of price record mutations",
	},
	[]string{"operation", "result"},
)

// CacheInvalidationFailures - изменения, после которых кеш представлений не удалось сбросить
var CacheInvalidationFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pricing_cache_invalidation_failures_total",
		Help: "Total number of item changes whose cached views could not be invalidated",
	},
)

// PriceHistoryAppends - записи, добавленные в историю цен
var PriceHistoryAppends = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pricing_price_history_appends_total",
		Help: "Total number of superseded prices appended to history",
	},
)

// RecomputeDuration - время пересчёта derived metrics одного товара
var RecomputeDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "pricing_recompute_duration_seconds",
		Help:    "Duration of derived metrics recomputation for a single item",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	},
)

// SearchRequests - поисковые запросы по ключу сортировки
var SearchRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_search_requests_total",
		Help: "Total number of catalog search requests",
	},
	[]string{"sort_key"},
)

// SearchCandidates - сколько кандидатов вернул репозиторий до фильтрации в памяти
var SearchCandidates = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "pricing_search_candidates",
		Help:    "Number of candidate items fetched from storage per search",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000},
	},
)

// ReconcileRuns - запуски фоновой сверки derived metrics
var ReconcileRuns = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_reconcile_runs_total",
		Help: "Total number of reconciliation runs",
	},
	[]string{"status"}, // success, failed
)

// ReconcileRepairs - товары, у которых сверка нашла и исправила расхождение
var ReconcileRepairs = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "pricing_reconcile_repairs_total",
		Help: "Total number of items whose stored metrics were repaired",
	},
)

// ObservationsProcessed - наблюдения цен, полученные из Kafka
var ObservationsProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricing_observations_processed_total",
		Help: "Total number of price observations consumed from Kafka",
	},
	[]string{"status"}, // applied, skipped, failed
)
