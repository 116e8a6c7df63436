package consensus

//
//            +----------------+  NewBlock(h)   +----------------+
//   start -> | AwaitingBlock  +--------------> |   PrePropose   | <-----------------+
//            +----------------+                +-------+--------+                   |
//                    ^                                 | leader: +2/3 pre-proposes  |
//                    |                                 | -> Proposal                |
//                    |                                 v                            |
//                    |                         +----------------+  +2/3 nil or      |
//                    |                         |    Proposed    +-----------------> +
//                    |                         +-------+--------+  timeoutCommit    |
//                    |                                 | +2/3 commits               | NextRound
//                    |                                 v                            |
//                    |      NewBlock(h+1)      +----------------+                   |
//                    +-------------------------+   Committed    |                   |
//                                              +----------------+                   |
//   timeoutPropose in PrePropose: commit nil --------------------------------------+
//

// Core - 共识状态机，main goroutine
//	- RoundState - 当前(height, round)的状态，锁定的下界、提案和commit都保存在这里
//	- RoundRobin - 根据链上区块计算每轮的leader
//	- BundleVoteManager - bundle投票，2/3以后形成证书
//	- EvidenceCollector - 检测guard在同一轮签了两个不同的东西
//	- TimeoutTicker - 提案和commit超时
//  	- EvidenceStore / FinalizedStore - 数据持久化
//	- Reactor - 把core接到p2p Switch上，负责收发消息
