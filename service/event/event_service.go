/*
 * @module service/event/event_service
 * @description 通知分发服务，接收状态处理器的(角色,消息类型,上下文)三元组，持久化后经SSE推送，
 *              通过PostgreSQL NOTIFY做跨实例扇出，可选桥接MQTT主题
 * @architecture 事件驱动架构 - 业务服务层
 * @documentReference ai_docs/qa_workflow_req.md
 * @stateFlow 通知生成 -> 持久化 -> 本地SSE推送/跨实例NOTIFY/MQTT发布 -> 送达标记
 * @rules 分发为即发即忘，任何投递失败只记录日志，绝不回滚或阻塞触发它的状态转换
 * @dependencies certqa-service/service/models, gorm.io/gorm, github.com/lib/pq, github.com/eclipse/paho.mqtt.golang
 * @refs service/qa/handlers.go, api/controllers/notification_controller.go
 */

package event

import (
	"certqa-service/service/models"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// notifyChannel 跨实例扇出使用的PostgreSQL NOTIFY通道
const notifyChannel = "certqa_notifications"

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SSEClient SSE客户端连接
type SSEClient struct {
	ID        string
	CompanyID string
	Channel   chan *models.Notification
	Done      chan bool
}

// EventService 通知分发服务
type EventService struct {
	db          *gorm.DB
	connections map[string]map[string]*SSEClient // companyID -> connectionID -> client
	mu          sync.RWMutex
	dbListener  *pq.Listener
	mqttClient  mqtt.Client
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventService 创建通知分发服务实例
func NewEventService(db *gorm.DB) *EventService {
	ctx, cancel := context.WithCancel(context.Background())

	service := &EventService{
		db:          db,
		connections: make(map[string]map[string]*SSEClient),
		ctx:         ctx,
		cancel:      cancel,
	}

	// 启动跨实例通知监听器
	go service.startDBListener()

	// 可选MQTT桥接
	service.initMQTTBridge()

	return service
}

// Send 分发一条通知，即发即忘
// 持久化失败或任何推送失败只记录日志，不向调用方返回错误
func (s *EventService) Send(recipientRole, messageType string, notifyCtx map[string]interface{}) {
	notification := &models.Notification{
		RecipientRole: recipientRole,
		MessageType:   messageType,
		Context:       models.JSONB(notifyCtx),
	}
	if companyID, ok := notifyCtx["recipient_company_id"].(string); ok {
		notification.RecipientCompanyID = companyID
	}

	if err := s.db.Create(notification).Error; err != nil {
		slog.Error("通知持久化失败", "message_type", messageType, "error", err)
		return
	}

	go s.dispatch(notification)
}

// dispatch 执行通知投递: 本地SSE、跨实例NOTIFY、MQTT桥接
func (s *EventService) dispatch(notification *models.Notification) {
	s.pushToLocalClients(notification)

	// 跨实例扇出: 其他实例经LISTEN收到后推给各自的SSE连接
	if err := s.db.Exec("SELECT pg_notify(?, ?)", notifyChannel, notification.ID).Error; err != nil {
		slog.Warn("跨实例通知扇出失败", "notification_id", notification.ID, "error", err)
	}

	s.publishToMQTT(notification)

	now := time.Now()
	if err := s.db.Model(&models.Notification{}).Where("id = ?", notification.ID).
		Updates(map[string]interface{}{"status": "sent", "sent_at": &now}).Error; err != nil {
		slog.Warn("通知送达标记失败", "notification_id", notification.ID, "error", err)
	}
}

// pushToLocalClients 推送到本实例持有的SSE连接
func (s *EventService) pushToLocalClients(notification *models.Notification) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := s.connections[notification.RecipientCompanyID]
	for _, client := range clients {
		select {
		case client.Channel <- notification:
		default:
			slog.Warn("SSE客户端缓冲已满，通知跳过", "connection_id", client.ID)
		}
	}
}

// AddSSEConnection 添加SSE连接
func (s *EventService) AddSSEConnection(companyID, connectionID string) *SSEClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connections[companyID] == nil {
		s.connections[companyID] = make(map[string]*SSEClient)
	}

	client := &SSEClient{
		ID:        connectionID,
		CompanyID: companyID,
		Channel:   make(chan *models.Notification, 100), // 缓冲100条通知
		Done:      make(chan bool),
	}
	s.connections[companyID][connectionID] = client
	return client
}

// RemoveSSEConnection 移除SSE连接
func (s *EventService) RemoveSSEConnection(companyID, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clients, ok := s.connections[companyID]; ok {
		if client, ok := clients[connectionID]; ok {
			close(client.Done)
			delete(clients, connectionID)
		}
		if len(clients) == 0 {
			delete(s.connections, companyID)
		}
	}
}

// ListNotifications 按公司分页查询通知记录
func (s *EventService) ListNotifications(companyID string, page, size int) ([]models.Notification, int64, error) {
	query := s.db.Model(&models.Notification{})
	if companyID != "" {
		query = query.Where("recipient_company_id = ?", companyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&notifications).Error
	return notifications, total, err
}

// startDBListener 监听PostgreSQL NOTIFY通道，接收其他实例扇出的通知
func (s *EventService) startDBListener() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}

	s.dbListener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("通知监听器事件异常", "event", ev, "error", err)
		}
	})

	if err := s.dbListener.Listen(notifyChannel); err != nil {
		slog.Error("通知通道监听失败", "channel", notifyChannel, "error", err)
		return
	}
	slog.Info("通知通道监听已启动", "channel", notifyChannel)

	for {
		select {
		case <-s.ctx.Done():
			s.dbListener.Close()
			return
		case n := <-s.dbListener.Notify:
			if n == nil {
				continue
			}
			var notification models.Notification
			if err := s.db.First(&notification, "id = ?", n.Extra).Error; err != nil {
				slog.Warn("扇出通知加载失败", "notification_id", n.Extra, "error", err)
				continue
			}
			s.pushToLocalClients(&notification)
		case <-time.After(90 * time.Second):
			go s.dbListener.Ping()
		}
	}
}

// initMQTTBridge 初始化可选的MQTT桥接
// 未配置MQTT_BROKER时跳过
func (s *EventService) initMQTTBridge() {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("certqa-service-%d", os.Getpid())).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	if username := os.Getenv("MQTT_USERNAME"); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(os.Getenv("MQTT_PASSWORD"))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		slog.Error("MQTT桥接连接失败", "broker", broker, "error", token.Error())
		return
	}
	s.mqttClient = client
	slog.Info("MQTT通知桥接已启动", "broker", broker)
}

// publishToMQTT 向MQTT主题发布通知
func (s *EventService) publishToMQTT(notification *models.Notification) {
	if s.mqttClient == nil || !s.mqttClient.IsConnected() {
		return
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		slog.Warn("MQTT通知序列化失败", "notification_id", notification.ID, "error", err)
		return
	}

	topic := fmt.Sprintf("certqa/notifications/%s", notification.RecipientCompanyID)
	token := s.mqttClient.Publish(topic, 0, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			slog.Warn("MQTT通知发布失败", "topic", topic, "error", token.Error())
		}
	}()
}

// Stop 停止通知分发服务
func (s *EventService) Stop() {
	s.cancel()
	if s.mqttClient != nil {
		s.mqttClient.Disconnect(250)
	}
}
