package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ImageFields 提供图片请求日志复用的字段；id 为空时省略。
func ImageFields(action, requestID, id string) logrus.Fields {
	fields := logrus.Fields{
		"action":     action,
		"request_id": requestID,
	}
	if id != "" {
		fields["id"] = id
	}
	return fields
}

// RequestFields 提供 method/path/status/耗时字段，供访问日志复用。
func RequestFields(requestID, method, path string, status int, elapsedMs int64) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
		"elapsed_ms": elapsedMs,
	}
}
