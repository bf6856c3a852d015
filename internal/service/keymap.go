package service

// KeyMap 单次运行内 temp_key 与主事件 id 的双向映射，运行结束即丢弃
type KeyMap struct {
	ids        map[string]uint64
	keys       map[uint64]map[string]struct{}
	aliases    map[string]string
	redirected map[string]struct{}
}

func NewKeyMap() *KeyMap {
	return &KeyMap{
		ids:        make(map[string]uint64),
		keys:       make(map[uint64]map[string]struct{}),
		aliases:    make(map[string]string),
		redirected: make(map[string]struct{}),
	}
}

// Bind 绑定 key → id，覆盖该 key 之前的绑定
func (m *KeyMap) Bind(key string, id uint64) {
	if key == "" {
		return
	}
	if old, ok := m.ids[key]; ok {
		delete(m.keys[old], key)
	}
	m.ids[key] = id
	if m.keys[id] == nil {
		m.keys[id] = make(map[string]struct{})
	}
	m.keys[id][key] = struct{}{}
}

// UnbindID 移除指向 id 的所有绑定（该主事件已被删除）
func (m *KeyMap) UnbindID(id uint64) {
	for key := range m.keys[id] {
		delete(m.ids, key)
	}
	delete(m.keys, id)
}

// Alias 记录 from 应解析为 to（候选重复于已有事件时使用）
func (m *KeyMap) Alias(from, to string) {
	if from == "" || to == "" || from == to {
		return
	}
	m.aliases[from] = to
}

// MarkRedirected 标记该 key 由自纠正阶段改写，允许回查数据库
func (m *KeyMap) MarkRedirected(key string) {
	if key != "" {
		m.redirected[key] = struct{}{}
	}
}

// ClearRedirected 撤销重定向标记（纠正未能提交）
func (m *KeyMap) ClearRedirected(key string) {
	delete(m.redirected, key)
}

func (m *KeyMap) Redirected(key string) bool {
	_, ok := m.redirected[key]
	return ok
}

// chain 沿别名链展开，遇到环即停止
func (m *KeyMap) chain(key string) []string {
	out := []string{key}
	seen := map[string]struct{}{key: {}}
	for {
		next, ok := m.aliases[key]
		if !ok {
			return out
		}
		if _, loop := seen[next]; loop {
			return out
		}
		seen[next] = struct{}{}
		out = append(out, next)
		key = next
	}
}

// Canonical 别名链终点
func (m *KeyMap) Canonical(key string) string {
	c := m.chain(key)
	return c[len(c)-1]
}

// Resolve 沿别名链依次查找本次运行已绑定的 id，key 自身的绑定优先
func (m *KeyMap) Resolve(key string) (uint64, bool) {
	if key == "" {
		return 0, false
	}
	for _, k := range m.chain(key) {
		if id, ok := m.ids[k]; ok {
			return id, true
		}
	}
	return 0, false
}
