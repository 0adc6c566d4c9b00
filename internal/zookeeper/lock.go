// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"storefront/internal/service/inventory/domain"
	"storefront/internal/service/inventory/domain/port"
)

const (
	lockRoot = "/storefront/locks" // 所有 SKU 锁的根节点
)

// Locker 是 port.Locker 的 ZooKeeper 实现：临时顺序节点 + 监听前驱。
// 相比 Redis 实现，zk 的会话机制保证持有方崩溃后锁立即释放。
type Locker struct {
	conn *zk.Conn
}

var _ port.Locker = (*Locker)(nil)

// NewLocker 建立 zk 连接并确保锁根节点存在。
func NewLocker(servers []string) (*Locker, error) {
	conn, _, err := zk.Connect(servers, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect zookeeper: %w", err)
	}
	if err := ensurePath(conn, lockRoot); err != nil {
		conn.Close()
		return nil, err
	}
	return &Locker{conn: conn}, nil
}

func (l *Locker) Close() {
	l.conn.Close()
}

// Acquire 在 /storefront/locks/<resource>/ 下创建临时顺序节点，
// 只有序号最小者持锁；其余监听各自的前驱节点，带超时。
func (l *Locker) Acquire(ctx context.Context, resource string, timeout time.Duration) (port.Unlocker, error) {
	lockPath := lockRoot + "/" + sanitize(resource)
	if err := ensurePath(l.conn, lockPath); err != nil {
		return nil, err
	}

	nodePath, err := l.conn.CreateProtectedEphemeralSequential(lockPath+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return nil, fmt.Errorf("create sequential node: %w", err)
	}
	release := func() {
		if err := l.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
			// 会话过期时临时节点会自动消失，这里的失败可以容忍
			_ = err
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		children, _, err := l.conn.Children(lockPath)
		if err != nil {
			release()
			return nil, fmt.Errorf("list lock children: %w", err)
		}
		sort.Strings(children)

		myNode := strings.TrimPrefix(nodePath, lockPath+"/")
		if myNode == children[0] {
			// 序号最小，持锁成功
			return port.Unlocker(release), nil
		}

		// 只监听自己的前驱，避免惊群
		prevIndex := -1
		for i, child := range children {
			if child == myNode {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			release()
			return nil, fmt.Errorf("own lock node %s vanished from children", myNode)
		}
		prevPath := lockPath + "/" + children[prevIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevPath)
		if err != nil {
			release()
			return nil, fmt.Errorf("watch previous lock node: %w", err)
		}
		if !exists {
			// 前驱刚好释放，重新竞争
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			release()
			return nil, domain.ErrLockTimeout
		}
		timer := time.NewTimer(remaining)
		select {
		case event := <-eventChan:
			timer.Stop()
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-timer.C:
			release()
			return nil, domain.ErrLockTimeout
		case <-ctx.Done():
			timer.Stop()
			release()
			return nil, ctx.Err()
		}
	}
}

// ensurePath 逐级创建持久节点，已存在不算错误。
func ensurePath(conn *zk.Conn, path string) error {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		_, err := conn.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("create lock path node %s: %w", current, err)
		}
	}
	return nil
}

// sanitize 把资源名中的路径分隔符替换掉，保证单层节点。
func sanitize(resource string) string {
	return strings.ReplaceAll(resource, "/", "_")
}
