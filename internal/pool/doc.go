/*
包 pool 提供有界并发的扇出/扇入原语，供爬虫与其他批量扫描步骤共用。

# 核心函数

  - ForEach：以固定宽度（默认 5）并发处理切片，首个错误取消其余任务
  - Map：同 ForEach，按输入顺序收集结果
  - WithTimeout：任务与定时器竞速，超时立即返回 ErrTaskTimeout，
    无响应的对端不会拖住整个批次

任务中的 panic 会被恢复并转换为 ErrTaskPanicked。
*/
package pool
