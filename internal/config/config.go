package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

const (
	// AppName 应用名称，用于数据目录
	AppName = "examassist"

	DefaultEndpoint     = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"
	DefaultModel        = "qwen-plus"
	DefaultSystemPrompt = "你是一个医学专家，精通中医学和西医学。"

	DefaultGroupSize         = 10
	DefaultGroupTimeout      = 60 * time.Second
	DefaultBatchTimeout      = 240 * time.Second
	DefaultConnectionTimeout = 15 * time.Second
	DefaultPort              = 11451
)

// ConfigFile 配置文件结构
type ConfigFile struct {
	Endpoint          string `json:"endpoint"`
	Model             string `json:"model"`
	SystemPrompt      string `json:"system_prompt"`
	GroupSize         int    `json:"group_size"`
	GroupTimeoutSec   int    `json:"group_timeout_sec"`
	BatchTimeoutSec   int    `json:"batch_timeout_sec"`
	ConnectionTimeout int    `json:"connection_timeout_sec"`
	Port              int    `json:"port"`
	DataDir           string `json:"data_dir,omitempty"`
	ChromeBinaryPath  string `json:"chrome_binary_path,omitempty"`
	Cookie            string `json:"cookie,omitempty"`
}

// Config 全局配置管理
type Config struct {
	mu                sync.RWMutex
	Endpoint          string
	Model             string
	SystemPrompt      string
	GroupSize         int
	GroupTimeout      time.Duration
	BatchTimeout      time.Duration
	ConnectionTimeout time.Duration
	Port              int
	DataDir           string
	ChromeBinaryPath  string
	Cookie            string
	FilePath          string
	IsLinux           bool

	// chromeOverride 配置文件里显式写入的路径，自动检测到的路径不写回文件
	chromeOverride string
}

var (
	instance *Config
	once     sync.Once
)

// GetConfig 获取配置单例
func GetConfig() *Config {
	once.Do(func() {
		instance = New("./config.json")
	})
	return instance
}

// New 创建使用默认值的配置，path 为配置文件路径
func New(path string) *Config {
	c := &Config{FilePath: path}
	c.applyDefaults()
	c.initPaths()
	return c
}

// applyDefaults 填充默认值
func (c *Config) applyDefaults() {
	c.Endpoint = DefaultEndpoint
	c.Model = DefaultModel
	c.SystemPrompt = DefaultSystemPrompt
	c.GroupSize = DefaultGroupSize
	c.GroupTimeout = DefaultGroupTimeout
	c.BatchTimeout = DefaultBatchTimeout
	c.ConnectionTimeout = DefaultConnectionTimeout
	c.Port = DefaultPort
	c.DataDir = filepath.Join(xdg.DataHome, AppName)
}

// initPaths 初始化路径配置
func (c *Config) initPaths() {
	c.IsLinux = runtime.GOOS == "linux"

	if c.IsLinux {
		c.ChromeBinaryPath = findChromeBinary()
	} else {
		c.ChromeBinaryPath = findWindowsChrome()
	}
}

// findWindowsChrome Windows 下自动查找 Chrome 二进制文件
func findWindowsChrome() string {
	paths := []string{
		os.Getenv("PROGRAMFILES") + "\\Google\\Chrome\\Application\\chrome.exe",
		os.Getenv("PROGRAMFILES(X86)") + "\\Google\\Chrome\\Application\\chrome.exe",
		os.Getenv("LOCALAPPDATA") + "\\Google\\Chrome\\Application\\chrome.exe",
		".\\chrome-win64\\chrome.exe",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// findChromeBinary Linux下自动查找Chrome
func findChromeBinary() string {
	binaries := []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}

	for _, binary := range binaries {
		if _, err := os.Stat(binary); err == nil {
			return binary
		}
	}
	return ""
}

// Load 加载配置文件，文件不存在时写入默认配置
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.saveInternal()
		}
		return err
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}

	if file.Endpoint != "" {
		c.Endpoint = file.Endpoint
	}
	if file.Model != "" {
		c.Model = file.Model
	}
	if file.SystemPrompt != "" {
		c.SystemPrompt = file.SystemPrompt
	}
	if file.GroupSize != 0 {
		c.GroupSize = file.GroupSize
	}
	if file.GroupTimeoutSec != 0 {
		c.GroupTimeout = time.Duration(file.GroupTimeoutSec) * time.Second
	}
	if file.BatchTimeoutSec != 0 {
		c.BatchTimeout = time.Duration(file.BatchTimeoutSec) * time.Second
	}
	if file.ConnectionTimeout != 0 {
		c.ConnectionTimeout = time.Duration(file.ConnectionTimeout) * time.Second
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.DataDir != "" {
		c.DataDir = file.DataDir
	}
	if file.ChromeBinaryPath != "" {
		c.ChromeBinaryPath = file.ChromeBinaryPath
		c.chromeOverride = file.ChromeBinaryPath
	}
	c.Cookie = file.Cookie

	return nil
}

// Save 保存配置文件
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveInternal()
}

// saveInternal 内部保存方法（不加锁）
func (c *Config) saveInternal() error {
	file := ConfigFile{
		Endpoint:          c.Endpoint,
		Model:             c.Model,
		SystemPrompt:      c.SystemPrompt,
		GroupSize:         c.GroupSize,
		GroupTimeoutSec:   int(c.GroupTimeout / time.Second),
		BatchTimeoutSec:   int(c.BatchTimeout / time.Second),
		ConnectionTimeout: int(c.ConnectionTimeout / time.Second),
		Port:              c.Port,
		DataDir:           c.DataDir,
		ChromeBinaryPath:  c.chromeOverride,
		Cookie:            c.Cookie,
	}

	data, err := json.MarshalIndent(file, "", "    ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(c.FilePath, data, 0o600)
}

// UpdateCookie 更新页面Cookie
func (c *Config) UpdateCookie(cookie string) error {
	c.mu.Lock()
	c.Cookie = cookie
	c.mu.Unlock()
	return c.Save()
}

// Snapshot 获取配置副本，避免调用方持有锁
func (c *Config) Snapshot() ConfigFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConfigFile{
		Endpoint:          c.Endpoint,
		Model:             c.Model,
		SystemPrompt:      c.SystemPrompt,
		GroupSize:         c.GroupSize,
		GroupTimeoutSec:   int(c.GroupTimeout / time.Second),
		BatchTimeoutSec:   int(c.BatchTimeout / time.Second),
		ConnectionTimeout: int(c.ConnectionTimeout / time.Second),
		Port:              c.Port,
		DataDir:           c.DataDir,
		ChromeBinaryPath:  c.ChromeBinaryPath,
		Cookie:            c.Cookie,
	}
}

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate 验证配置
func (c *Config) Validate() []ValidationError {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errors []ValidationError

	if c.Endpoint == "" {
		errors = append(errors, ValidationError{Field: "endpoint", Message: "接口地址不能为空"})
	}
	if c.Model == "" {
		errors = append(errors, ValidationError{Field: "model", Message: "模型名称不能为空"})
	}
	if c.GroupSize <= 0 {
		errors = append(errors, ValidationError{Field: "group_size", Message: "分组大小必须为正数"})
	}
	if c.GroupTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "group_timeout_sec", Message: "单组超时必须为正数"})
	}
	if c.BatchTimeout < c.GroupTimeout {
		errors = append(errors, ValidationError{
			Field:   "batch_timeout_sec",
			Message: "总超时(" + strconv.Itoa(int(c.BatchTimeout/time.Second)) + "s)不能小于单组超时",
		})
	}
	if c.Port <= 0 || c.Port > 65535 {
		errors = append(errors, ValidationError{Field: "port", Message: "端口无效"})
	}

	return errors
}
